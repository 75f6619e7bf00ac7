// Package analytics emits product analytics for call activity.
// Tracking is fire-and-forget: failures are logged and never affect
// call handling.
package analytics

import (
	"log/slog"
	"time"

	segment "github.com/segmentio/analytics-go/v3"
)

// Tracker records call lifecycle and tool activity. user may be empty
// for unattributed deployments; implementations fall back to the
// stream ID as the anonymous identity.
type Tracker interface {
	CallStarted(user, streamID, callID, number string)
	CallEnded(user, streamID, callID, number string, duration time.Duration)
	ToolInvoked(user, streamID, tool, description string)
}

// Nop discards all events.
type Nop struct{}

func (Nop) CallStarted(user, streamID, callID, number string) {}
func (Nop) CallEnded(user, streamID, callID, number string, duration time.Duration) {
}
func (Nop) ToolInvoked(user, streamID, tool, description string) {}

// Segment forwards events to Segment.
type Segment struct {
	client segment.Client
	log    *slog.Logger
}

// SegmentOption configures a Segment tracker.
type SegmentOption func(*Segment)

// WithClient overrides the Segment client, for tests.
func WithClient(c segment.Client) SegmentOption {
	return func(s *Segment) { s.client = c }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) SegmentOption {
	return func(s *Segment) { s.log = l }
}

// NewSegment creates a tracker batching events to Segment under the
// given write key.
func NewSegment(writeKey string, opts ...SegmentOption) *Segment {
	s := &Segment{log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = segment.New(writeKey)
	}
	return s
}

// Close flushes queued events.
func (s *Segment) Close() error {
	return s.client.Close()
}

func (s *Segment) CallStarted(user, streamID, callID, number string) {
	s.track(user, streamID, "Call Started", segment.NewProperties().
		Set("stream_id", streamID).
		Set("call_id", callID).
		Set("caller_number", number))
}

func (s *Segment) CallEnded(user, streamID, callID, number string, duration time.Duration) {
	s.track(user, streamID, "Call Ended", segment.NewProperties().
		Set("stream_id", streamID).
		Set("call_id", callID).
		Set("caller_number", number).
		Set("duration_seconds", duration.Seconds()))
}

func (s *Segment) ToolInvoked(user, streamID, tool, description string) {
	s.track(user, streamID, "Tool Called", segment.NewProperties().
		Set("stream_id", streamID).
		Set("tool_name", tool).
		Set("tool_description", description))
}

func (s *Segment) track(user, streamID, event string, props segment.Properties) {
	msg := segment.Track{Event: event, Properties: props}
	if user != "" {
		msg.UserId = user
	} else {
		msg.AnonymousId = streamID
	}
	if err := s.client.Enqueue(msg); err != nil {
		s.log.Warn("analytics enqueue failed", "event", event, "error", err)
	}
}
