package bridge

import (
	"sync"
	"time"

	"github.com/ringlet-ai/ringlet/pkg/audio/g711"
)

// frameBuffer coalesces inbound caller audio before it is handed to the
// remote session. Telephony providers emit 20 ms frames; forwarding each
// one would cost a session send per frame, so frames accumulate until one
// flush interval's worth of audio is buffered or the periodic tick finds
// the buffer stale.
//
// The send runs under the buffer's mutex: a size-driven flush and a
// timer-driven flush can never interleave, so audio reaches the session
// in accumulation order.
type frameBuffer struct {
	send func(p []byte) error

	mu        sync.Mutex
	buf       []byte
	threshold int
	interval  time.Duration
	lastFlush time.Time
}

// newFrameBuffer sizes the buffer at one interval's worth of 8 kHz µ-law
// audio.
func newFrameBuffer(interval time.Duration, send func(p []byte) error) *frameBuffer {
	return &frameBuffer{
		send:      send,
		threshold: g711.Bytes(interval),
		interval:  interval,
		lastFlush: time.Now(),
	}
}

// Append adds caller audio and reports whether it triggered a size
// flush. The flush completes before Append returns; the buffer is empty
// afterwards.
func (b *frameBuffer) Append(p []byte) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) < b.threshold {
		return false, nil
	}
	return true, b.flushLocked()
}

// TimeFlush flushes a non-empty buffer that has not been flushed for at
// least one interval. The periodic loop calls it every half interval.
func (b *frameBuffer) TimeFlush(now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 || now.Sub(b.lastFlush) < b.interval {
		return nil
	}
	return b.flushLocked()
}

func (b *frameBuffer) flushLocked() error {
	data := b.buf
	b.buf = nil
	b.lastFlush = time.Now()
	return b.send(data)
}
