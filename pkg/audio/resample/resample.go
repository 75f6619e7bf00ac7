// Package resample converts 16-bit signed PCM audio between sample rates
// and channel layouts, streaming through an io.Reader.
//
// Rate conversion uses a pure Go polyphase resampler (no CGO). Channel
// conversion (mono↔stereo) happens before rate conversion so the
// resampler always runs at the destination channel count.
package resample

import (
	"fmt"
	"io"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Format describes a 16-bit signed PCM stream.
type Format struct {
	// Rate is the sample rate in Hz (e.g., 8000, 24000, 44100).
	Rate int

	// Stereo selects two interleaved channels; false means mono.
	Stereo bool
}

func (f Format) channels() int {
	if f.Stereo {
		return 2
	}
	return 1
}

// frameBytes is the byte width of one frame (all channels of one sample).
func (f Format) frameBytes() int {
	return 2 * f.channels()
}

// Reader converts audio read from an underlying source. It implements
// io.ReadCloser; Read is not safe for concurrent use with itself, but
// Close may race with Read.
type Reader struct {
	src    *frameReader
	srcFmt Format
	dstFmt Format

	mu       sync.Mutex
	rs       resampling.Resampler // nil when no rate conversion is needed
	pending  []byte
	block    []byte
	closeErr error
}

// New wraps src, converting audio from srcFmt to dstFmt.
func New(src io.Reader, srcFmt, dstFmt Format) (*Reader, error) {
	if srcFmt.Rate <= 0 || dstFmt.Rate <= 0 {
		return nil, fmt.Errorf("resample: invalid rate %d -> %d", srcFmt.Rate, dstFmt.Rate)
	}

	r := &Reader{
		src:    newFrameReader(src, srcFmt.frameBytes()),
		srcFmt: srcFmt,
		dstFmt: dstFmt,
	}
	if srcFmt.Rate != dstFmt.Rate {
		rs, err := resampling.New(&resampling.Config{
			InputRate:  float64(srcFmt.Rate),
			OutputRate: float64(dstFmt.Rate),
			Channels:   dstFmt.channels(),
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("resample: %w", err)
		}
		r.rs = rs
	}
	return r, nil
}

// Read fills p with converted audio. It returns io.ErrShortBuffer if p
// cannot hold one destination frame. The byte count is always a multiple
// of the destination frame size except at end of stream.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) < r.dstFmt.frameBytes() {
		return 0, io.ErrShortBuffer
	}
	p = p[:len(p)/r.dstFmt.frameBytes()*r.dstFmt.frameBytes()]

	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		if len(r.pending) > 0 {
			n := copy(p, r.pending)
			r.pending = r.pending[n:]
			return n, nil
		}
		if r.closeErr != nil {
			return 0, r.closeErr
		}

		src, readErr := r.readBlock()
		if len(src) == 0 {
			if readErr == nil {
				readErr = io.EOF
			}
			return 0, readErr
		}

		out := src
		if r.rs != nil {
			var err error
			out, err = r.rateConvert(src)
			if err != nil {
				return 0, fmt.Errorf("resample: %w", err)
			}
		}
		r.pending = out
		if readErr != nil && len(r.pending) == 0 {
			return 0, readErr
		}
	}
}

// blockFrames is how many source frames are pulled per conversion pass.
const blockFrames = 2048

// readBlock reads one block from the source and converts its channel
// layout to the destination's. The returned slice is valid until the next
// call.
func (r *Reader) readBlock() ([]byte, error) {
	want := blockFrames * r.srcFmt.frameBytes()
	if cap(r.block) < want*2 {
		r.block = make([]byte, want*2)
	}

	n, err := r.src.Read(r.block[:want])
	if n == 0 {
		return nil, err
	}
	b := r.block[:n]

	switch {
	case r.srcFmt.Stereo && !r.dstFmt.Stereo:
		b = b[:downmix(b)]
	case !r.srcFmt.Stereo && r.dstFmt.Stereo:
		b = r.block[:upmix(r.block, n)]
	}
	return b, err
}

// rateConvert runs one block through the polyphase resampler and returns
// freshly allocated destination-format bytes.
func (r *Reader) rateConvert(src []byte) ([]byte, error) {
	samples := len(src) / 2
	in := make([]float64, samples)
	for i := range samples {
		s := int16(src[i*2]) | int16(src[i*2+1])<<8
		in[i] = float64(s) / 32768.0
	}

	out, err := r.rs.Process(in)
	if err != nil {
		return nil, err
	}

	dst := make([]byte, len(out)*2)
	for i, v := range out {
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		s := int16(v * 32767.0)
		dst[i*2] = byte(s)
		dst[i*2+1] = byte(s >> 8)
	}
	// Align to whole frames.
	return dst[:len(dst)/r.dstFmt.frameBytes()*r.dstFmt.frameBytes()], nil
}

// Close releases the resampler. Subsequent reads return io.ErrClosedPipe.
func (r *Reader) Close() error {
	return r.CloseWithError(fmt.Errorf("resample: %w", io.ErrClosedPipe))
}

// CloseWithError releases the resampler with a custom error returned by
// subsequent reads.
func (r *Reader) CloseWithError(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr == nil {
		r.closeErr = err
	}
	r.rs = nil
	return nil
}

// downmix averages interleaved stereo int16 frames into mono in place and
// returns the new length.
func downmix(b []byte) int {
	frames := len(b) / 4
	for i := range frames {
		l := int16(b[i*4]) | int16(b[i*4+1])<<8
		rr := int16(b[i*4+2]) | int16(b[i*4+3])<<8
		m := int16((int32(l) + int32(rr)) / 2)
		b[i*2] = byte(m)
		b[i*2+1] = byte(m >> 8)
	}
	return frames * 2
}

// upmix duplicates mono int16 samples into interleaved stereo in place
// (the buffer must have capacity for 2*n bytes) and returns the new
// length.
func upmix(b []byte, n int) int {
	samples := n / 2
	for i := samples - 1; i >= 0; i-- {
		lo, hi := b[i*2], b[i*2+1]
		b[i*4], b[i*4+1] = lo, hi
		b[i*4+2], b[i*4+3] = lo, hi
	}
	return samples * 4
}
