// Package wav reads and writes minimal RIFF WAVE files.
//
// Only the two encodings the bridge touches are supported: 16-bit linear
// PCM (format tag 1) and G.711 µ-law (format tag 7). The reader scans
// chunks for "fmt " and "data" and ignores everything else; the writer
// emits a canonical header with a fact chunk for the non-PCM format, which
// is what common tooling expects.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Format tags.
const (
	FormatPCM16 uint16 = 1
	FormatULaw  uint16 = 7
)

// ErrNotWave reports a stream that is not a RIFF WAVE file.
var ErrNotWave = errors.New("wav: not a RIFF WAVE stream")

// File is a decoded WAVE file.
type File struct {
	Format     uint16
	Channels   int
	SampleRate int
	Bits       int
	Data       []byte
}

// Decode reads a WAVE file from r.
func Decode(r io.Reader) (*File, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("wav: read header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, ErrNotWave
	}

	f := &File{}
	sawFmt := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("wav: read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("wav: fmt chunk too small (%d bytes)", size)
			}
			buf := make([]byte, size)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			f.Format = binary.LittleEndian.Uint16(buf[0:2])
			f.Channels = int(binary.LittleEndian.Uint16(buf[2:4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(buf[4:8]))
			f.Bits = int(binary.LittleEndian.Uint16(buf[14:16]))
			sawFmt = true
		case "data":
			f.Data = make([]byte, size)
			if _, err := io.ReadFull(r, f.Data); err != nil {
				return nil, fmt.Errorf("wav: read data chunk: %w", err)
			}
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return nil, fmt.Errorf("wav: skip %q chunk: %w", id, err)
			}
		}

		// Chunks are word-aligned; odd sizes carry a pad byte.
		if size%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil && err != io.EOF {
				return nil, fmt.Errorf("wav: skip pad byte: %w", err)
			}
		}
	}

	if !sawFmt {
		return nil, errors.New("wav: missing fmt chunk")
	}
	if f.Data == nil {
		return nil, errors.New("wav: missing data chunk")
	}
	switch f.Format {
	case FormatPCM16:
		if f.Bits != 16 {
			return nil, fmt.Errorf("wav: unsupported PCM bit depth %d", f.Bits)
		}
	case FormatULaw:
		if f.Bits != 8 {
			return nil, fmt.Errorf("wav: unsupported µ-law bit depth %d", f.Bits)
		}
	default:
		return nil, fmt.Errorf("wav: unsupported format tag %d", f.Format)
	}
	return f, nil
}

// EncodePCM16 writes data (16-bit little-endian interleaved samples) as a
// WAVE file to w.
func EncodePCM16(w io.Writer, data []byte, sampleRate, channels int) error {
	return encode(w, FormatPCM16, data, sampleRate, channels, 16)
}

// EncodeULaw writes 8 kHz mono µ-law data as a WAVE file to w.
func EncodeULaw(w io.Writer, data []byte) error {
	return encode(w, FormatULaw, data, 8000, 1, 8)
}

func encode(w io.Writer, format uint16, data []byte, sampleRate, channels, bits int) error {
	if channels <= 0 || sampleRate <= 0 {
		return fmt.Errorf("wav: invalid format %dHz/%dch", sampleRate, channels)
	}
	blockAlign := channels * bits / 8
	byteRate := sampleRate * blockAlign

	// Non-PCM formats carry an extended fmt chunk (cbSize=0) plus a fact
	// chunk with the frame count.
	fmtSize := 16
	factSize := 0
	if format != FormatPCM16 {
		fmtSize = 18
		factSize = 8 + 4
	}
	riffSize := 4 + (8 + fmtSize) + factSize + (8 + len(data))

	var hdr []byte
	hdr = append(hdr, "RIFF"...)
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(riffSize))
	hdr = append(hdr, "WAVE"...)
	hdr = append(hdr, "fmt "...)
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(fmtSize))
	hdr = binary.LittleEndian.AppendUint16(hdr, format)
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(channels))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(sampleRate))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(byteRate))
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(blockAlign))
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(bits))
	if format != FormatPCM16 {
		hdr = binary.LittleEndian.AppendUint16(hdr, 0) // cbSize
		hdr = append(hdr, "fact"...)
		hdr = binary.LittleEndian.AppendUint32(hdr, 4)
		hdr = binary.LittleEndian.AppendUint32(hdr, uint32(len(data)/blockAlign))
	}
	hdr = append(hdr, "data"...)
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(len(data)))

	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("wav: write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("wav: write data: %w", err)
	}
	return nil
}
