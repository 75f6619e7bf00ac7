package resample

import "io"

// frameReader wraps an io.Reader so each Read returns a whole number of
// frames. Partial frame bytes are buffered until the rest arrives; a
// truncated trailing frame at end of stream surfaces as
// io.ErrUnexpectedEOF.
type frameReader struct {
	r         io.Reader
	frameSize int
	carry     []byte
	carried   int
}

func newFrameReader(r io.Reader, frameSize int) *frameReader {
	return &frameReader{
		r:         r,
		frameSize: frameSize,
		carry:     make([]byte, frameSize-1),
	}
}

func (fr *frameReader) Read(p []byte) (int, error) {
	if len(p) < fr.frameSize {
		return 0, io.ErrShortBuffer
	}
	p = p[:len(p)/fr.frameSize*fr.frameSize]

	n := copy(p, fr.carry[:fr.carried])
	for n < fr.frameSize {
		m, err := fr.r.Read(p[n:])
		n += m
		if err != nil {
			rem := n % fr.frameSize
			if err == io.EOF && rem != 0 {
				err = io.ErrUnexpectedEOF
			}
			fr.carried = 0
			return n, err
		}
	}

	rem := n % fr.frameSize
	fr.carried = copy(fr.carry, p[n-rem:n])
	return n - rem, nil
}
