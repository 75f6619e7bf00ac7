// Package g711 implements G.711 µ-law companding for the fixed telephony
// audio format: 8000 Hz, mono, one byte per sample.
//
// Linear samples are 16-bit signed little-endian. Encoding follows the
// ITU-T G.711 segment layout (bias 132, clip 32635); decoding uses a
// 256-entry table built at init.
package g711

import "time"

// SampleRate is the telephony sample rate in Hz.
const SampleRate = 8000

const (
	bias = 0x84
	clip = 32635
)

var decodeTable [256]int16

func init() {
	for i := range decodeTable {
		u := ^byte(i)
		exponent := (u >> 4) & 0x07
		mantissa := u & 0x0f
		x := ((int32(mantissa) << 3) + bias) << exponent
		x -= bias
		if u&0x80 != 0 {
			x = -x
		}
		decodeTable[i] = int16(x)
	}
}

// EncodeSample compands one 16-bit linear sample to a µ-law byte.
func EncodeSample(s int16) byte {
	x := int32(s)
	var sign byte
	if x < 0 {
		x = -x
		sign = 0x80
	}
	if x > clip {
		x = clip
	}
	x += bias
	exponent := byte(7)
	for mask := int32(0x4000); x&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte(x>>(exponent+3)) & 0x0f
	return ^(sign | exponent<<4 | mantissa)
}

// DecodeSample expands one µ-law byte to a 16-bit linear sample.
func DecodeSample(u byte) int16 {
	return decodeTable[u]
}

// Encode compands 16-bit little-endian linear PCM to µ-law, one output
// byte per input sample. A trailing odd byte is ignored.
func Encode(lpcm []byte) []byte {
	n := len(lpcm) / 2
	out := make([]byte, n)
	for i := range n {
		s := int16(lpcm[i*2]) | int16(lpcm[i*2+1])<<8
		out[i] = EncodeSample(s)
	}
	return out
}

// Decode expands µ-law bytes to 16-bit little-endian linear PCM.
func Decode(ulaw []byte) []byte {
	out := make([]byte, len(ulaw)*2)
	for i, u := range ulaw {
		s := decodeTable[u]
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// Bytes returns the number of µ-law bytes in the given duration.
func Bytes(d time.Duration) int {
	return int(time.Duration(SampleRate) * d / time.Second)
}

// Duration returns the playback duration of n µ-law bytes.
func Duration(n int) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}

// Silence is the µ-law code for a zero sample.
const Silence = 0xff
