package bridge

import (
	"strconv"
	"sync"
)

type markRecord struct {
	utteranceID   string
	contentOffset int
	byteLength    int
}

// markTracker correlates outbound audio chunks with the provider's
// playback acknowledgements. Each chunk sent to the caller gets a mark
// id; when the provider echoes the mark back, the recorded tuple is
// reported to the remote session so it knows exactly how much audio the
// caller has heard. Queued-for-sending is not played.
type markTracker struct {
	report func(utteranceID string, contentOffset, byteCount int)

	mu      sync.Mutex
	counter int
	pending map[string]markRecord
}

func newMarkTracker(report func(utteranceID string, contentOffset, byteCount int)) *markTracker {
	return &markTracker{
		report:  report,
		pending: make(map[string]markRecord),
	}
}

// RecordSent allocates the next mark id for a chunk just sent to the
// caller. Ids are a per-call decimal counter, never reused.
func (t *markTracker) RecordSent(utteranceID string, contentOffset, byteLength int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counter++
	id := strconv.Itoa(t.counter)
	t.pending[id] = markRecord{
		utteranceID:   utteranceID,
		contentOffset: contentOffset,
		byteLength:    byteLength,
	}
	return id
}

// Acknowledge resolves a provider mark event, reporting playback
// progress exactly once per id. Unknown ids are duplicate or stale
// acknowledgements, possibly trailing a finished call, and are ignored.
func (t *markTracker) Acknowledge(markID string) {
	t.mu.Lock()
	rec, ok := t.pending[markID]
	if ok {
		delete(t.pending, markID)
	}
	t.mu.Unlock()
	if ok {
		t.report(rec.utteranceID, rec.contentOffset, rec.byteLength)
	}
}
