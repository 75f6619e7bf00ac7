package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ringlet-ai/ringlet/pkg/audio/g711"
	"github.com/ringlet-ai/ringlet/pkg/callinfo"
	"github.com/ringlet-ai/ringlet/pkg/encoding"
	"github.com/ringlet-ai/ringlet/pkg/mediastream"
	"github.com/ringlet-ai/ringlet/pkg/recorder"
	"github.com/ringlet-ai/ringlet/pkg/storage"
	"github.com/ringlet-ai/ringlet/pkg/toolkit"
	"github.com/ringlet-ai/ringlet/pkg/voiceagent"
)

type connItem struct {
	msg *mediastream.Message
	err error
}

// wireFrame is one outbound frame recorded by fakeConn.
type wireFrame struct {
	kind    string // "media", "mark" or "clear"
	payload []byte
	name    string
}

// fakeConn scripts the inbound telephony stream and records every
// outbound frame in send order.
type fakeConn struct {
	in     chan connItem
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	frames []wireFrame
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan connItem, 64), closed: make(chan struct{})}
}

func (c *fakeConn) deliver(msg *mediastream.Message) { c.in <- connItem{msg: msg} }
func (c *fakeConn) deliverErr(err error)             { c.in <- connItem{err: err} }

func (c *fakeConn) Read() (*mediastream.Message, error) {
	select {
	case item := <-c.in:
		return item.msg, item.err
	case <-c.closed:
		return nil, errors.New("connection closed")
	}
}

func (c *fakeConn) record(f wireFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
}

func (c *fakeConn) SendMedia(payload []byte) error {
	c.record(wireFrame{kind: "media", payload: slices.Clone(payload)})
	return nil
}

func (c *fakeConn) SendMark(name string) error {
	c.record(wireFrame{kind: "mark", name: name})
	return nil
}

func (c *fakeConn) SendClear() error {
	c.record(wireFrame{kind: "clear"})
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sent() []wireFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.frames)
}

func (c *fakeConn) sentKinds() []string {
	frames := c.sent()
	kinds := make([]string, len(frames))
	for i, f := range frames {
		kinds[i] = f.kind
	}
	return kinds
}

type remoteItem struct {
	ev  voiceagent.Event
	err error
}

type playback struct {
	utterance string
	offset    int
	count     int
}

// fakeRemote scripts the remote session's event stream and records
// everything the bridge feeds into it.
type fakeRemote struct {
	events chan remoteItem
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	audio  [][]byte
	msgs   []string
	played []playback
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{events: make(chan remoteItem, 64), closed: make(chan struct{})}
}

func (f *fakeRemote) emit(ev voiceagent.Event) { f.events <- remoteItem{ev: ev} }
func (f *fakeRemote) fail(err error)           { f.events <- remoteItem{err: err} }

func (f *fakeRemote) SendAudio(_ context.Context, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, slices.Clone(p))
	return nil
}

func (f *fakeRemote) SendMessage(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, text)
	return nil
}

func (f *fakeRemote) ReportPlayed(utteranceID string, contentOffset, byteCount int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, playback{utteranceID, contentOffset, byteCount})
}

func (f *fakeRemote) Events(ctx context.Context) iter.Seq2[voiceagent.Event, error] {
	return func(yield func(voiceagent.Event, error) bool) {
		for {
			select {
			case item := <-f.events:
				if !yield(item.ev, item.err) {
					return
				}
				if item.err != nil {
					return
				}
			case <-f.closed:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (f *fakeRemote) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeRemote) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeRemote) sentAudio() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.audio)
}

func (f *fakeRemote) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.msgs)
}

func (f *fakeRemote) playbacks() []playback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.played)
}

type trackedCall struct {
	user     string
	streamID string
	callID   string
	number   string
	duration time.Duration
}

type trackedTool struct {
	user        string
	streamID    string
	tool        string
	description string
}

type captureTracker struct {
	mu      sync.Mutex
	started []trackedCall
	ended   []trackedCall
	tools   []trackedTool
}

func (c *captureTracker) CallStarted(user, streamID, callID, number string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = append(c.started, trackedCall{user: user, streamID: streamID, callID: callID, number: number})
}

func (c *captureTracker) CallEnded(user, streamID, callID, number string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended = append(c.ended, trackedCall{user, streamID, callID, number, duration})
}

func (c *captureTracker) ToolInvoked(user, streamID, tool, description string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = append(c.tools, trackedTool{user, streamID, tool, description})
}

func (c *captureTracker) startedCalls() []trackedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.started)
}

func (c *captureTracker) endedCalls() []trackedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.ended)
}

func (c *captureTracker) toolCalls() []trackedTool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.tools)
}

type callHarness struct {
	conn    *fakeConn
	remote  *fakeRemote
	tracker *captureTracker
	sess    *CallSession
	done    chan error
}

// startCall runs a CallSession against scripted fakes. Dial, Analytics
// and Logger are filled in.
func startCall(t *testing.T, opts Options) *callHarness {
	t.Helper()
	h := &callHarness{
		conn:    newFakeConn(),
		remote:  newFakeRemote(),
		tracker: &captureTracker{},
		done:    make(chan error, 1),
	}
	opts.Dial = func(context.Context) (RemoteSession, error) { return h.remote, nil }
	opts.Analytics = h.tracker
	opts.Logger = slog.New(slog.DiscardHandler)
	h.sess = newCallSession(h.conn, opts)
	go func() { h.done <- h.sess.Run(context.Background()) }()
	return h
}

// start delivers the provider start frame and waits for the greeting
// instruction, after which the call is active.
func (h *callHarness) start(t *testing.T, streamID, callID string) {
	t.Helper()
	h.conn.deliver(&mediastream.Message{
		Event: mediastream.EventStart,
		Start: &mediastream.StartPayload{StreamSID: streamID, CallSID: callID},
	})
	waitFor(t, "greeting instruction", func() bool { return len(h.remote.messages()) > 0 })
}

// hangUp delivers the provider stop frame and waits for Run to return.
func (h *callHarness) hangUp(t *testing.T) {
	t.Helper()
	h.conn.deliver(&mediastream.Message{Event: mediastream.EventStop, Stop: &mediastream.StopPayload{}})
	h.wait(t)
}

func (h *callHarness) wait(t *testing.T) {
	t.Helper()
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("call did not end")
	}
}

func (h *callHarness) bufferedBytes() int {
	b := h.sess.buffer
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

func mediaFrame(payload []byte) *mediastream.Message {
	return &mediastream.Message{
		Event: mediastream.EventMedia,
		Media: &mediastream.MediaPayload{Payload: encoding.StdBase64Data(payload)},
	}
}

// waitFor polls for an effect of the session's loops, which run on
// their own goroutines.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunRequiresDial(t *testing.T) {
	sess := newCallSession(newFakeConn(), Options{
		DisableFillerTone: true,
		Logger:            slog.New(slog.DiscardHandler),
	})
	err := sess.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Dial") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunDialFailure(t *testing.T) {
	dialErr := errors.New("realtime endpoint unreachable")
	sess := newCallSession(newFakeConn(), Options{
		DisableFillerTone: true,
		Logger:            slog.New(slog.DiscardHandler),
		Dial:              func(context.Context) (RemoteSession, error) { return nil, dialErr },
	})
	if err := sess.Run(context.Background()); !errors.Is(err, dialErr) {
		t.Fatalf("err = %v, want %v", err, dialErr)
	}
	if got := sess.State(); got != StateEnded {
		t.Fatalf("state = %v", got)
	}
}

func TestCallFlow(t *testing.T) {
	h := startCall(t, Options{
		FlushInterval:     time.Second,
		DisableFillerTone: true,
		Caller:            callinfo.Static{Info: callinfo.CallerInfo{Number: "+12125550199"}},
	})

	h.conn.deliver(&mediastream.Message{Event: mediastream.EventConnected})
	h.start(t, "SM1", "CA1")

	msg := h.remote.messages()[0]
	if !strings.Contains(msg, "CA1") || !strings.Contains(msg, DefaultGreeting) {
		t.Fatalf("greeting instruction = %q", msg)
	}
	started := h.tracker.startedCalls()
	if len(started) != 1 {
		t.Fatalf("call-started events = %d", len(started))
	}
	want := trackedCall{user: "+12125550199", streamID: "SM1", callID: "CA1", number: "+12125550199"}
	if started[0] != want {
		t.Fatalf("call-started = %+v, want %+v", started[0], want)
	}
	if got := h.sess.State(); got != StateActive {
		t.Fatalf("state = %v", got)
	}
	if h.sess.StreamID() != "SM1" || h.sess.CallID() != "CA1" {
		t.Fatalf("identifiers = %q / %q", h.sess.StreamID(), h.sess.CallID())
	}

	// Three frames well below one interval's worth of audio coalesce
	// until the timed flush.
	first := bytes.Repeat([]byte{0x01}, 160)
	second := bytes.Repeat([]byte{0x02}, 160)
	third := bytes.Repeat([]byte{0x03}, 160)
	for _, p := range [][]byte{first, second, third} {
		h.conn.deliver(mediaFrame(p))
	}
	h.conn.deliver(&mediastream.Message{Event: mediastream.EventDTMF, DTMF: &mediastream.DTMFPayload{Digit: "5"}})

	waitFor(t, "caller audio to buffer", func() bool { return h.bufferedBytes() == 480 })
	if got := len(h.remote.sentAudio()); got != 0 {
		t.Fatalf("audio forwarded before the timed flush: %d sends", got)
	}

	waitFor(t, "timed flush", func() bool { return len(h.remote.sentAudio()) == 1 })
	if got := h.remote.sentAudio()[0]; !bytes.Equal(got, slices.Concat(first, second, third)) {
		t.Fatalf("flushed %d bytes out of arrival order", len(got))
	}

	h.hangUp(t)

	ended := h.tracker.endedCalls()
	if len(ended) != 1 {
		t.Fatalf("call-ended events = %d", len(ended))
	}
	if ended[0].streamID != "SM1" || ended[0].callID != "CA1" || ended[0].duration <= 0 {
		t.Fatalf("call-ended = %+v", ended[0])
	}
	if got := h.sess.State(); got != StateEnded {
		t.Fatalf("state = %v", got)
	}
	if d := h.sess.Duration(); d <= 0 {
		t.Fatalf("duration = %v", d)
	}
	if !h.remote.isClosed() {
		t.Fatal("remote session left open")
	}
}

func TestMediaFlushesAtThreshold(t *testing.T) {
	h := startCall(t, Options{FlushInterval: 200 * time.Millisecond, DisableFillerTone: true})

	payload := bytes.Repeat([]byte{0x55}, g711.Bytes(200*time.Millisecond))
	h.conn.deliver(mediaFrame(payload))
	h.hangUp(t)

	audio := h.remote.sentAudio()
	if len(audio) != 1 {
		t.Fatalf("audio sends = %d", len(audio))
	}
	if !bytes.Equal(audio[0], payload) {
		t.Fatalf("forwarded %d bytes, want %d", len(audio[0]), len(payload))
	}
}

func TestMalformedFrameSkipped(t *testing.T) {
	h := startCall(t, Options{FlushInterval: 200 * time.Millisecond, DisableFillerTone: true})

	h.conn.deliverErr(fmt.Errorf("%w: corrupt payload", mediastream.ErrBadFrame))
	h.conn.deliver(&mediastream.Message{Event: "checkpoint"})
	payload := bytes.Repeat([]byte{0x2a}, g711.Bytes(200*time.Millisecond))
	h.conn.deliver(mediaFrame(payload))
	h.hangUp(t)

	if got := len(h.remote.sentAudio()); got != 1 {
		t.Fatalf("audio sends after bad frame = %d", got)
	}
}

func TestFillerToneClearedBySpeech(t *testing.T) {
	h := startCall(t, Options{})

	if h.sess.toneClip == nil {
		t.Fatal("no filler clip synthesized")
	}
	h.remote.emit(voiceagent.Event{Kind: voiceagent.KindTurnStarted})
	waitFor(t, "filler clip", func() bool { return len(h.conn.sent()) == 1 })
	if f := h.conn.sent()[0]; f.kind != "media" || !bytes.Equal(f.payload, h.sess.toneClip) {
		t.Fatalf("first frame = %s (%d bytes)", f.kind, len(f.payload))
	}

	chunk := bytes.Repeat([]byte{0x11}, 160)
	h.remote.emit(voiceagent.Event{Kind: voiceagent.KindSpeechChunk, UtteranceID: "item_1", Audio: chunk})
	waitFor(t, "speech after clear", func() bool { return len(h.conn.sent()) == 4 })
	frames := h.conn.sent()
	if got, want := h.conn.sentKinds(), []string{"media", "clear", "media", "mark"}; !slices.Equal(got, want) {
		t.Fatalf("frames = %v, want %v", got, want)
	}
	if !bytes.Equal(frames[2].payload, chunk) {
		t.Fatal("speech chunk altered in transit")
	}
	if frames[3].name != "1" {
		t.Fatalf("mark name = %q", frames[3].name)
	}

	// The clip is gone; later chunks stream without a clear.
	h.remote.emit(voiceagent.Event{Kind: voiceagent.KindSpeechChunk, UtteranceID: "item_1", ContentOffset: 160, Audio: chunk})
	waitFor(t, "second chunk", func() bool { return len(h.conn.sent()) == 6 })
	if got := h.conn.sentKinds()[4:]; !slices.Equal(got, []string{"media", "mark"}) {
		t.Fatalf("frames after clip = %v", got)
	}

	// Real speech has happened, so later turn starts play no clip.
	h.remote.emit(voiceagent.Event{Kind: voiceagent.KindTurnStarted})
	h.remote.emit(voiceagent.Event{Kind: voiceagent.KindSpeechChunk, UtteranceID: "item_2", Audio: chunk})
	waitFor(t, "second turn speech", func() bool { return len(h.conn.sent()) == 8 })
	if got := h.conn.sentKinds()[6:]; !slices.Equal(got, []string{"media", "mark"}) {
		t.Fatalf("second turn frames = %v", got)
	}

	h.hangUp(t)
}

func TestInterruptSendsSingleClear(t *testing.T) {
	h := startCall(t, Options{DisableFillerTone: true})

	h.remote.emit(voiceagent.Event{Kind: voiceagent.KindSpeechChunk, UtteranceID: "item_1", Audio: bytes.Repeat([]byte{0x33}, 320)})
	waitFor(t, "speech", func() bool { return len(h.conn.sent()) == 2 })

	h.remote.emit(voiceagent.Event{Kind: voiceagent.KindSpeechInterrupted})
	waitFor(t, "clear", func() bool { return len(h.conn.sent()) == 3 })

	h.hangUp(t)

	if got, want := h.conn.sentKinds(), []string{"media", "mark", "clear"}; !slices.Equal(got, want) {
		t.Fatalf("frames = %v, want %v", got, want)
	}
}

func TestMarkAcknowledgementReportsPlayback(t *testing.T) {
	h := startCall(t, Options{DisableFillerTone: true})

	h.remote.emit(voiceagent.Event{Kind: voiceagent.KindSpeechChunk, UtteranceID: "item_1", Audio: bytes.Repeat([]byte{0x44}, 160)})
	waitFor(t, "mark", func() bool { return len(h.conn.sent()) == 2 })
	mark := h.conn.sent()[1]
	if mark.kind != "mark" {
		t.Fatalf("second frame = %s", mark.kind)
	}

	ack := &mediastream.Message{Event: mediastream.EventMark, Mark: &mediastream.MarkPayload{Name: mark.name}}
	h.conn.deliver(ack)
	waitFor(t, "playback report", func() bool { return len(h.remote.playbacks()) == 1 })
	if got, want := h.remote.playbacks()[0], (playback{"item_1", 0, 160}); got != want {
		t.Fatalf("playback = %+v, want %+v", got, want)
	}

	// Duplicate and unknown acknowledgements are dropped.
	h.conn.deliver(ack)
	h.conn.deliver(&mediastream.Message{Event: mediastream.EventMark, Mark: &mediastream.MarkPayload{Name: "99"}})
	h.hangUp(t)

	if got := len(h.remote.playbacks()); got != 1 {
		t.Fatalf("playback reports = %d", got)
	}
}

func TestToolEventsTracked(t *testing.T) {
	reg := toolkit.NewRegistry()
	tool := toolkit.MustFunc("lookup_order", "Look up an order by number.", func(ctx context.Context, _ struct{}) (any, error) {
		return "ok", nil
	})
	if err := reg.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}

	h := startCall(t, Options{
		DisableFillerTone: true,
		Tools:             reg,
		Greeting:          "Thanks for calling Ringlet support.",
		Caller:            callinfo.Static{Info: callinfo.CallerInfo{Number: "+12125550142"}},
	})
	h.start(t, "SM9", "CA9")
	if msg := h.remote.messages()[0]; !strings.Contains(msg, "Thanks for calling Ringlet support.") {
		t.Fatalf("greeting instruction = %q", msg)
	}

	h.remote.emit(voiceagent.Event{Kind: voiceagent.KindToolStarted, Tool: "lookup_order"})
	waitFor(t, "tool analytics", func() bool { return len(h.tracker.toolCalls()) == 1 })
	want := trackedTool{user: "+12125550142", streamID: "SM9", tool: "lookup_order", description: "Look up an order by number."}
	if got := h.tracker.toolCalls()[0]; got != want {
		t.Fatalf("tool event = %+v, want %+v", got, want)
	}

	h.remote.emit(voiceagent.Event{Kind: voiceagent.KindToolEnded, Tool: "lookup_order", ToolOutput: `"ok"`})
	h.remote.emit(voiceagent.Event{Kind: voiceagent.KindToolEnded, Tool: "lookup_order", Err: errors.New("order not found")})
	waitFor(t, "tool outcomes", func() bool { return len(h.sess.ToolOutcomes()) == 2 })
	h.hangUp(t)

	outcomes := h.sess.ToolOutcomes()
	if outcomes[0].Err != nil {
		t.Fatalf("first outcome err = %v", outcomes[0].Err)
	}
	if outcomes[1].Err == nil || !strings.Contains(outcomes[1].Err.Error(), "order not found") {
		t.Fatalf("second outcome err = %v", outcomes[1].Err)
	}
	if outcomes[0].At.IsZero() {
		t.Fatal("outcome timestamp unset")
	}
}

func TestRemoteFailureEndsCall(t *testing.T) {
	h := startCall(t, Options{DisableFillerTone: true})
	h.start(t, "SM2", "CA2")

	h.remote.fail(errors.New("stream reset by peer"))
	h.wait(t)

	if got := h.sess.State(); got != StateEnded {
		t.Fatalf("state = %v", got)
	}
	if got := len(h.tracker.endedCalls()); got != 1 {
		t.Fatalf("call-ended events = %d", got)
	}
}

func TestTelephonyDisconnectEndsCall(t *testing.T) {
	h := startCall(t, Options{DisableFillerTone: true})

	h.conn.deliverErr(errors.New("websocket: close 1006 (abnormal closure)"))
	h.wait(t)

	if got := h.sess.State(); got != StateEnded {
		t.Fatalf("state = %v", got)
	}
	// The call never went active, so no call-ended event fires.
	if got := len(h.tracker.endedCalls()); got != 0 {
		t.Fatalf("call-ended events = %d", got)
	}
}

func TestIdleWatchdog(t *testing.T) {
	h := startCall(t, Options{
		DisableFillerTone: true,
		FlushInterval:     40 * time.Millisecond,
		IdleTimeout:       80 * time.Millisecond,
	})
	h.wait(t)

	if got := h.sess.State(); got != StateEnded {
		t.Fatalf("state = %v", got)
	}
}

func TestRecorderArchivesTracks(t *testing.T) {
	store, err := storage.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("dir store: %v", err)
	}
	h := startCall(t, Options{
		FlushInterval:     200 * time.Millisecond,
		DisableFillerTone: true,
		Record: func(callID string) *recorder.Recorder {
			return recorder.New(store, callID)
		},
	})
	h.start(t, "SM3", "CA3")

	h.conn.deliver(mediaFrame(bytes.Repeat([]byte{0x66}, g711.Bytes(200*time.Millisecond))))
	h.remote.emit(voiceagent.Event{Kind: voiceagent.KindSpeechChunk, UtteranceID: "item_1", Audio: bytes.Repeat([]byte{0x77}, 320)})
	waitFor(t, "assistant speech", func() bool { return len(h.conn.sent()) == 2 })
	h.hangUp(t)

	want := []string{"recordings/CA3/caller.wav", "recordings/CA3/assistant.wav"}
	if got := h.sess.Recordings(); !slices.Equal(got, want) {
		t.Fatalf("recordings = %v, want %v", got, want)
	}
	for _, path := range want {
		ok, err := store.Exists(context.Background(), path)
		if err != nil || !ok {
			t.Fatalf("archived file %s: ok=%v err=%v", path, ok, err)
		}
	}
}
