package g711

import (
	"testing"
	"time"
)

func TestEncodeSampleKnownValues(t *testing.T) {
	tests := []struct {
		in   int16
		want byte
	}{
		{0, 0xff},
		{8, 0xfe},
		{-8, 0x7e},
		{32124, 0x80},
		{-32124, 0x00},
		{32767, 0x80}, // clips to max magnitude
		{-32768, 0x00},
	}

	for _, tt := range tests {
		if got := EncodeSample(tt.in); got != tt.want {
			t.Errorf("EncodeSample(%d) = %#02x; want %#02x", tt.in, got, tt.want)
		}
	}
}

func TestDecodeSampleKnownValues(t *testing.T) {
	tests := []struct {
		in   byte
		want int16
	}{
		{0xff, 0},
		{0x7f, 0},
		{0x80, 32124},
		{0x00, -32124},
	}

	for _, tt := range tests {
		if got := DecodeSample(tt.in); got != tt.want {
			t.Errorf("DecodeSample(%#02x) = %d; want %d", tt.in, got, tt.want)
		}
	}
}

func TestRoundTripWithinQuantizationError(t *testing.T) {
	// µ-law quantization error grows with magnitude: one step per segment.
	for s := int32(-32124); s <= 32124; s += 97 {
		u := EncodeSample(int16(s))
		back := int32(DecodeSample(u))
		diff := s - back
		if diff < 0 {
			diff = -diff
		}
		// Top segment quantizes in 1024-unit steps, so the code value
		// can sit up to half a step from the input.
		if diff > 512 {
			t.Fatalf("round trip %d -> %#02x -> %d: error %d", s, u, back, diff)
		}
	}
}

func TestEncodeDecodeSlices(t *testing.T) {
	lpcm := []byte{0x00, 0x00, 0x08, 0x00, 0xf8, 0xff} // 0, 8, -8
	u := Encode(lpcm)
	if len(u) != 3 {
		t.Fatalf("Encode returned %d bytes; want 3", len(u))
	}
	want := []byte{0xff, 0xfe, 0x7e}
	for i := range want {
		if u[i] != want[i] {
			t.Errorf("Encode[%d] = %#02x; want %#02x", i, u[i], want[i])
		}
	}

	back := Decode(u)
	if len(back) != 6 {
		t.Fatalf("Decode returned %d bytes; want 6", len(back))
	}
}

func TestEncodeIgnoresTrailingOddByte(t *testing.T) {
	u := Encode([]byte{0x00, 0x00, 0x42})
	if len(u) != 1 {
		t.Errorf("Encode of 3 bytes returned %d samples; want 1", len(u))
	}
}

func TestDurationMath(t *testing.T) {
	if got := Bytes(50 * time.Millisecond); got != 400 {
		t.Errorf("Bytes(50ms) = %d; want 400", got)
	}
	if got := Duration(8000); got != time.Second {
		t.Errorf("Duration(8000) = %v; want 1s", got)
	}
	if got := Duration(400); got != 50*time.Millisecond {
		t.Errorf("Duration(400) = %v; want 50ms", got)
	}
}
