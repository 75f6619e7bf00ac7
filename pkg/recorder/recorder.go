// Package recorder captures both directions of a call and archives them
// as µ-law WAV files.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/ringlet-ai/ringlet/pkg/audio/wav"
	"github.com/ringlet-ai/ringlet/pkg/buffer"
	"github.com/ringlet-ai/ringlet/pkg/storage"
)

// Track names, used as file stems under the call's recording prefix.
const (
	TrackCaller    = "caller"
	TrackAssistant = "assistant"
)

const queueDepth = 512

type chunk struct {
	track string
	data  []byte
}

// Recorder accumulates µ-law audio for one call and uploads one WAV per
// track on Close. Writes never block the audio path: frames go through a
// bounded queue drained by a dedicated goroutine, and a full queue drops
// the frame.
type Recorder struct {
	callID string
	store  storage.FileStore
	log    *slog.Logger

	q      *buffer.ChunkQueue[chunk]
	done   chan struct{}
	closed atomic.Bool

	caller    bytes.Buffer
	assistant bytes.Buffer
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger routes recorder diagnostics to log.
func WithLogger(log *slog.Logger) Option {
	return func(r *Recorder) { r.log = log }
}

// New starts a recorder for callID writing into store.
func New(store storage.FileStore, callID string, opts ...Option) *Recorder {
	r := &Recorder{
		callID: callID,
		store:  store,
		log:    slog.Default(),
		q:      buffer.NewChunkQueue[chunk](queueDepth),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.drain()
	return r
}

// WriteCaller records inbound caller audio.
func (r *Recorder) WriteCaller(ulaw []byte) { r.push(TrackCaller, ulaw) }

// WriteAssistant records outbound assistant audio.
func (r *Recorder) WriteAssistant(ulaw []byte) { r.push(TrackAssistant, ulaw) }

func (r *Recorder) push(track string, ulaw []byte) {
	if len(ulaw) == 0 || r.closed.Load() {
		return
	}
	// The caller may reuse the frame buffer.
	r.q.Push(chunk{track: track, data: slices.Clone(ulaw)})
}

func (r *Recorder) drain() {
	defer close(r.done)
	for {
		c, err := r.q.Pop()
		if err != nil {
			return
		}
		switch c.track {
		case TrackCaller:
			r.caller.Write(c.data)
		case TrackAssistant:
			r.assistant.Write(c.data)
		}
	}
}

// Close stops intake, encodes each non-empty track as a WAV and uploads
// it, returning the stored paths. Callers treat an error as a lost
// recording, not a failed call.
func (r *Recorder) Close(ctx context.Context) ([]string, error) {
	if !r.closed.CompareAndSwap(false, true) {
		return nil, nil
	}
	r.q.CloseWrite()
	<-r.done

	if n := r.q.Dropped(); n > 0 {
		r.log.Warn("recorder dropped frames under pressure",
			"call_id", r.callID, "dropped", n)
	}

	var (
		paths []string
		errs  []error
	)
	for _, tr := range []struct {
		name string
		data []byte
	}{
		{TrackCaller, r.caller.Bytes()},
		{TrackAssistant, r.assistant.Bytes()},
	} {
		if len(tr.data) == 0 {
			continue
		}
		path := fmt.Sprintf("recordings/%s/%s.wav", r.callID, tr.name)
		if err := r.upload(ctx, path, tr.data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", tr.name, err))
			continue
		}
		paths = append(paths, path)
	}
	return paths, errors.Join(errs...)
}

func (r *Recorder) upload(ctx context.Context, path string, data []byte) error {
	w, err := r.store.Write(ctx, path)
	if err != nil {
		return err
	}
	if err := wav.EncodeULaw(w, data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
