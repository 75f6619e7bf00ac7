// Package bridge relays one live phone call between a telephony media
// stream and a remote conversational session.
//
// A CallSession owns the call end to end: it coalesces caller audio into
// session-sized frames, forwards synthesized speech back to the caller,
// and keeps both sides' notion of played and interrupted audio consistent
// through the provider's mark protocol.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ringlet-ai/ringlet/pkg/analytics"
	"github.com/ringlet-ai/ringlet/pkg/audio/tone"
	"github.com/ringlet-ai/ringlet/pkg/callinfo"
	"github.com/ringlet-ai/ringlet/pkg/mediastream"
	"github.com/ringlet-ai/ringlet/pkg/recorder"
	"github.com/ringlet-ai/ringlet/pkg/toolkit"
	"github.com/ringlet-ai/ringlet/pkg/voiceagent"
)

// DefaultFlushInterval bounds the latency added by caller-audio
// coalescing. The size threshold is one interval's worth of µ-law.
const DefaultFlushInterval = 50 * time.Millisecond

// DefaultGreeting is the scripted opening line requested from the agent
// when a stream starts.
const DefaultGreeting = "Hello! Thanks for calling. How can I help you today?"

const recorderCloseTimeout = 30 * time.Second

// State is the lifecycle phase of a CallSession.
type State int

const (
	StateCreated State = iota
	StateConnecting
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// RemoteSession is the conversational backend for one call. It is the
// contract *voiceagent.Agent satisfies; the bridge never sees wire
// events, only semantic ones.
type RemoteSession interface {
	// SendAudio feeds caller audio into the session.
	SendAudio(ctx context.Context, p []byte) error

	// SendMessage injects an out-of-band instruction and requests a
	// response. Used once per call, for the greeting.
	SendMessage(ctx context.Context, text string) error

	// ReportPlayed records that the caller has heard byteCount bytes
	// of the utterance starting at contentOffset.
	ReportPlayed(utteranceID string, contentOffset, byteCount int)

	// Events yields the session's ordered semantic events.
	Events(ctx context.Context) iter.Seq2[voiceagent.Event, error]

	// Close releases the session. Idempotent.
	Close() error
}

var _ RemoteSession = (*voiceagent.Agent)(nil)

// telephonyConn is the slice of mediastream.Conn the session drives.
type telephonyConn interface {
	Read() (*mediastream.Message, error)
	SendMedia(payload []byte) error
	SendMark(name string) error
	SendClear() error
	Close() error
}

// Options configure one CallSession.
type Options struct {
	// Dial establishes the remote conversational session. Required;
	// failure is fatal to the call and propagates out of Run.
	Dial func(ctx context.Context) (RemoteSession, error)

	// Caller resolves call metadata at stream start. Nil skips the
	// lookup; the call proceeds without a caller number.
	Caller callinfo.Provider

	// Analytics receives call and tool events. Nil means analytics.Nop.
	Analytics analytics.Tracker

	// Record, when set, opens a recorder once the call id is known.
	Record func(callID string) *recorder.Recorder

	// Tools supplies descriptions for tool analytics events.
	Tools *toolkit.Registry

	// Greeting is the scripted opening line. Empty means
	// DefaultGreeting.
	Greeting string

	// FlushInterval bounds caller-audio coalescing latency. Zero means
	// DefaultFlushInterval.
	FlushInterval time.Duration

	// IdleTimeout tears the call down when no telephony traffic has
	// arrived for this long. Zero disables the watchdog.
	IdleTimeout time.Duration

	// DisableFillerTone skips the hold clip that masks first-response
	// latency.
	DisableFillerTone bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// ToolOutcome records one completed tool dispatch, for the call record.
type ToolOutcome struct {
	Name string
	Err  error
	At   time.Time
}

// CallSession owns one phone call end to end: the telephony connection,
// the remote session, the caller-audio buffer and the playback mark
// ledger.
type CallSession struct {
	conn      telephonyConn
	opts      Options
	analytics analytics.Tracker
	log       *slog.Logger
	startedAt time.Time
	toneClip  []byte

	// Set by Run before the loops start.
	session RemoteSession
	buffer  *frameBuffer
	marks   *markTracker

	lastMessage atomic.Int64

	mu         sync.Mutex
	state      State
	streamID   string
	callID     string
	caller     string
	duration   time.Duration
	rec        *recorder.Recorder
	recordings []string
	tools      []ToolOutcome
}

// NewCallSession prepares a session for an accepted telephony
// connection. Run drives it to completion.
func NewCallSession(conn *mediastream.Conn, opts Options) *CallSession {
	return newCallSession(conn, opts)
}

func newCallSession(conn telephonyConn, opts Options) *CallSession {
	if opts.Analytics == nil {
		opts.Analytics = analytics.Nop{}
	}
	if opts.Greeting == "" {
		opts.Greeting = DefaultGreeting
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &CallSession{
		conn:      conn,
		opts:      opts,
		analytics: opts.Analytics,
		log:       log,
		startedAt: time.Now(),
	}
	if !opts.DisableFillerTone {
		clip, err := tone.ULaw(tone.Options{})
		if err != nil {
			log.Warn("filler clip synthesis failed", "error", err)
		} else {
			s.toneClip = clip
		}
	}
	return s
}

// Run drives the call to completion and blocks until the session has
// fully ended: telephony stop, either endpoint failing, or the idle
// watchdog firing. The only error Run returns is a failure to establish
// the remote session; everything after that point is call end, not an
// error.
func (s *CallSession) Run(ctx context.Context) error {
	if s.opts.Dial == nil {
		return errors.New("bridge: Options.Dial is required")
	}

	s.setState(StateConnecting)
	session, err := s.opts.Dial(ctx)
	if err != nil {
		s.setState(StateEnded)
		return fmt.Errorf("bridge: establish remote session: %w", err)
	}
	s.session = session

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.buffer = newFrameBuffer(s.opts.FlushInterval, func(p []byte) error {
		return session.SendAudio(ctx, p)
	})
	s.marks = newMarkTracker(session.ReportPlayed)
	s.lastMessage.Store(time.Now().UnixNano())

	// Whichever loop exits first closes both endpoints, unblocking the
	// other two.
	var closeOnce sync.Once
	finish := func() {
		closeOnce.Do(func() {
			cancel()
			if err := session.Close(); err != nil {
				s.log.Debug("remote session close", "error", err)
			}
			if err := s.conn.Close(); err != nil {
				s.log.Debug("telephony close", "error", err)
			}
		})
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); defer finish(); s.telephonyLoop(ctx) }()
	go func() { defer wg.Done(); defer finish(); s.sessionLoop(ctx) }()
	go func() { defer wg.Done(); defer finish(); s.flushLoop(ctx) }()
	wg.Wait()

	s.end()
	s.closeRecorder()
	return nil
}

// telephonyLoop consumes the media stream until it closes or a stop
// frame ends the call. Malformed frames are dropped; the connection is
// never closed over a single bad message.
func (s *CallSession) telephonyLoop(ctx context.Context) {
	for {
		msg, err := s.conn.Read()
		if err != nil {
			if errors.Is(err, mediastream.ErrBadFrame) {
				s.log.Warn("dropping malformed telephony frame",
					"stream_id", s.StreamID(), "error", err)
				continue
			}
			if ctx.Err() == nil {
				s.log.Debug("telephony stream closed",
					"stream_id", s.StreamID(), "error", err)
			}
			return
		}
		s.lastMessage.Store(time.Now().UnixNano())
		if s.handleTelephony(ctx, msg) {
			return
		}
	}
}

// handleTelephony dispatches one inbound frame. It reports true when the
// call is over. Handler errors are logged, never returned: one bad
// message must not end the call.
func (s *CallSession) handleTelephony(ctx context.Context, msg *mediastream.Message) bool {
	switch msg.Event {
	case mediastream.EventConnected:
		s.log.Debug("telephony stream connected")

	case mediastream.EventStart:
		s.handleStart(ctx, msg)

	case mediastream.EventMedia:
		s.handleMedia(msg)

	case mediastream.EventMark:
		if msg.Mark != nil {
			s.marks.Acknowledge(msg.Mark.Name)
		}

	case mediastream.EventDTMF:
		if msg.DTMF != nil {
			s.log.Info("dtmf digit received",
				"stream_id", s.StreamID(), "digit", msg.DTMF.Digit)
		}

	case mediastream.EventStop:
		s.end()
		return true

	default:
		s.log.Debug("ignoring telephony event",
			"stream_id", s.StreamID(), "event", msg.Event)
	}
	return false
}

// handleStart stamps the call identifiers, resolves the caller number,
// sends the greeting instruction and registers the call with analytics.
// The analytics registration happens in the same dispatch step as the
// transition to Active.
func (s *CallSession) handleStart(ctx context.Context, msg *mediastream.Message) {
	if msg.Start == nil {
		s.log.Warn("start frame without payload")
		return
	}
	streamID, callID := msg.Start.StreamSID, msg.Start.CallSID

	var caller string
	if s.opts.Caller != nil {
		info, err := s.opts.Caller.Lookup(ctx, callID)
		if err != nil {
			s.log.Warn("caller lookup failed", "call_id", callID, "error", err)
		} else {
			caller = info.Number
		}
	}

	var rec *recorder.Recorder
	if s.opts.Record != nil {
		rec = s.opts.Record(callID)
	}

	s.mu.Lock()
	s.streamID = streamID
	s.callID = callID
	s.caller = caller
	s.rec = rec
	s.state = StateActive
	s.mu.Unlock()

	if err := s.session.SendMessage(ctx, greetingInstruction(callID, s.opts.Greeting)); err != nil {
		s.log.Warn("greeting send failed", "stream_id", streamID, "error", err)
	}
	s.analytics.CallStarted(caller, streamID, callID, caller)
	s.log.Info("call started",
		"stream_id", streamID, "call_id", callID, "caller", caller)
}

func (s *CallSession) handleMedia(msg *mediastream.Message) {
	if msg.Media == nil || len(msg.Media.Payload) == 0 {
		return
	}
	payload := []byte(msg.Media.Payload)
	if rec := s.recorder(); rec != nil {
		rec.WriteCaller(payload)
	}
	if _, err := s.buffer.Append(payload); err != nil {
		s.log.Warn("caller audio forward failed",
			"stream_id", s.StreamID(), "error", err)
	}
}

// sessionLoop consumes the remote session's event stream. The filler
// tone state is owned by this loop alone: the clip plays until the
// call's first real speech chunk cuts it off.
func (s *CallSession) sessionLoop(ctx context.Context) {
	var tonePlaying, speechSeen bool
	for ev, err := range s.session.Events(ctx) {
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("remote session stream failed",
					"stream_id", s.StreamID(), "error", err)
			}
			return
		}
		s.handleSessionEvent(ev, &tonePlaying, &speechSeen)
	}
}

func (s *CallSession) handleSessionEvent(ev voiceagent.Event, tonePlaying, speechSeen *bool) {
	switch ev.Kind {
	case voiceagent.KindTurnStarted:
		s.log.Debug("turn started", "stream_id", s.StreamID())
		if *speechSeen || *tonePlaying || s.toneClip == nil {
			return
		}
		if err := s.conn.SendMedia(s.toneClip); err != nil {
			s.log.Warn("filler clip send failed",
				"stream_id", s.StreamID(), "error", err)
			return
		}
		*tonePlaying = true

	case voiceagent.KindSpeechChunk:
		if *tonePlaying {
			// The clip is still playing on the caller's device; cut it
			// off before the real speech starts.
			if err := s.conn.SendClear(); err != nil {
				s.log.Warn("clear send failed",
					"stream_id", s.StreamID(), "error", err)
			}
			*tonePlaying = false
		}
		*speechSeen = true
		if rec := s.recorder(); rec != nil {
			rec.WriteAssistant(ev.Audio)
		}
		if err := s.conn.SendMedia(ev.Audio); err != nil {
			s.log.Warn("speech send failed",
				"stream_id", s.StreamID(), "error", err)
			return
		}
		markID := s.marks.RecordSent(ev.UtteranceID, ev.ContentOffset, len(ev.Audio))
		if err := s.conn.SendMark(markID); err != nil {
			s.log.Warn("mark send failed",
				"stream_id", s.StreamID(), "mark", markID, "error", err)
		}

	case voiceagent.KindSpeechInterrupted:
		s.log.Debug("caller interrupted playback", "stream_id", s.StreamID())
		if err := s.conn.SendClear(); err != nil {
			s.log.Warn("clear send failed",
				"stream_id", s.StreamID(), "error", err)
		}
		*tonePlaying = false

	case voiceagent.KindTurnEnded:
		s.log.Debug("turn ended", "stream_id", s.StreamID())

	case voiceagent.KindToolStarted:
		s.log.Info("tool invoked", "stream_id", s.StreamID(), "tool", ev.Tool)
		s.analytics.ToolInvoked(s.CallerNumber(), s.StreamID(), ev.Tool, s.toolDescription(ev.Tool))

	case voiceagent.KindToolEnded:
		s.noteTool(ev.Tool, ev.Err)
		if ev.Err != nil {
			s.log.Warn("tool failed",
				"stream_id", s.StreamID(), "tool", ev.Tool, "error", ev.Err)
		} else {
			s.log.Debug("tool completed", "stream_id", s.StreamID(), "tool", ev.Tool)
		}

	case voiceagent.KindHandoffRequested:
		s.log.Info("handoff requested",
			"stream_id", s.StreamID(), "tool", ev.Tool, "target", ev.Target)

	case voiceagent.KindSessionError:
		s.log.Warn("remote session error",
			"stream_id", s.StreamID(), "error", ev.Err)

	default:
		s.log.Debug("ignoring session event",
			"stream_id", s.StreamID(), "kind", ev.Kind.String())
	}
}

// flushLoop ticks every half flush-interval, draining stale caller audio
// and running the idle watchdog.
func (s *CallSession) flushLoop(ctx context.Context) {
	tick := time.NewTicker(s.opts.FlushInterval / 2)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			if err := s.buffer.TimeFlush(now); err != nil {
				if ctx.Err() == nil {
					s.log.Warn("timed flush failed",
						"stream_id", s.StreamID(), "error", err)
				}
			}
			if s.idleExpired() {
				s.log.Warn("idle timeout reached, ending call",
					"stream_id", s.StreamID())
				return
			}
		}
	}
}

func (s *CallSession) idleExpired() bool {
	timeout := s.opts.IdleTimeout
	if timeout <= 0 {
		return false
	}
	return time.Since(time.Unix(0, s.lastMessage.Load())) > timeout
}

// end runs the teardown bookkeeping exactly once: duration, the
// analytics call-ended event for calls that went active, and the state
// transition. Both the stop handler and Run call it.
func (s *CallSession) end() {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	wasActive := s.state == StateActive
	s.state = StateEnded
	s.duration = time.Since(s.startedAt)
	streamID, callID, caller, duration := s.streamID, s.callID, s.caller, s.duration
	s.mu.Unlock()

	if wasActive {
		s.analytics.CallEnded(caller, streamID, callID, caller, duration)
	}
	s.log.Info("call ended",
		"stream_id", streamID, "call_id", callID, "duration", duration)
}

func (s *CallSession) closeRecorder() {
	s.mu.Lock()
	rec := s.rec
	s.rec = nil
	s.mu.Unlock()
	if rec == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recorderCloseTimeout)
	defer cancel()
	paths, err := rec.Close(ctx)
	if err != nil {
		s.log.Warn("recording archive incomplete",
			"call_id", s.CallID(), "error", err)
	}
	if len(paths) > 0 {
		s.mu.Lock()
		s.recordings = paths
		s.mu.Unlock()
	}
}

func (s *CallSession) noteTool(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = append(s.tools, ToolOutcome{Name: name, Err: err, At: time.Now().UTC()})
}

func (s *CallSession) toolDescription(name string) string {
	if s.opts.Tools == nil {
		return ""
	}
	if t, ok := s.opts.Tools.Lookup(name); ok {
		return t.Description()
	}
	return ""
}

func (s *CallSession) recorder() *recorder.Recorder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec
}

func (s *CallSession) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State reports the session's lifecycle phase.
func (s *CallSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StreamID returns the provider stream identifier, empty before start.
func (s *CallSession) StreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID
}

// CallID returns the provider call-leg identifier, empty before start.
func (s *CallSession) CallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

// CallerNumber returns the caller's E.164 number, empty when the lookup
// failed or was skipped.
func (s *CallSession) CallerNumber() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caller
}

// StartedAt is the session construction time.
func (s *CallSession) StartedAt() time.Time { return s.startedAt }

// Duration is the call length, zero until the session has ended.
func (s *CallSession) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Recordings lists the archived recording paths, available after Run.
func (s *CallSession) Recordings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.recordings)
}

// ToolOutcomes lists completed tool dispatches, available after Run.
func (s *CallSession) ToolOutcomes() []ToolOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tools)
}

func greetingInstruction(callID, script string) string {
	return fmt.Sprintf("The call id is %s. Greet the caller with %q, then wait for the caller to speak.", callID, script)
}
