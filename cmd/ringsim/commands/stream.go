package commands

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ringlet-ai/ringlet/pkg/audio/g711"
	"github.com/ringlet-ai/ringlet/pkg/audio/wav"
	"github.com/ringlet-ai/ringlet/pkg/cli"
	"github.com/ringlet-ai/ringlet/pkg/encoding"
	"github.com/ringlet-ai/ringlet/pkg/mediastream"
)

// Media frames carry 20 ms of µ-law, the telephony cadence.
const frameInterval = 20 * time.Millisecond

var frameBytes = g711.Bytes(frameInterval)

var silenceFrame = bytes.Repeat([]byte{g711.Silence}, frameBytes)

// simAccountSID is the account the simulator reports in start and stop
// frames. One value per process run.
var simAccountSID = newSID("AC")

func newSID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

type callOptions struct {
	// MarkDelay simulates playback latency before a mark is echoed.
	MarkDelay time.Duration

	// Linger keeps the stream open with silence frames after the caller
	// audio ends, so the agent's reply can arrive.
	Linger time.Duration

	// Capture collects received audio for saving.
	Capture bool
}

// call is one simulated provider-side media stream.
type call struct {
	url       string
	streamSID string
	callSID   string
	src       []byte
	opts      callOptions

	mu       sync.Mutex
	ws       *websocket.Conn
	seq      int
	state    string
	startAt  time.Time
	txFrames int
	txBytes  int
	rxFrames int
	rxBytes  int
	marksRx  int
	marksTx  int
	clears   int
	received []byte
}

func newCall(url, streamSID, callSID string, src []byte, opts callOptions) *call {
	return &call{
		url:       url,
		streamSID: streamSID,
		callSID:   callSID,
		src:       src,
		opts:      opts,
		state:     "idle",
	}
}

// run dials the bridge, plays the call and hangs up. It returns when
// the stop frame has been sent and the server has closed, or on error.
func (c *call) run(ctx context.Context) error {
	c.setState("dialing")
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.setState("failed")
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer ws.Close()

	c.mu.Lock()
	c.ws = ws
	c.startAt = time.Now()
	c.mu.Unlock()

	if err := c.send(mediastream.Message{Event: mediastream.EventConnected}); err != nil {
		return fmt.Errorf("send connected: %w", err)
	}
	start := mediastream.Message{
		Event:     mediastream.EventStart,
		StreamSID: c.streamSID,
		Start: &mediastream.StartPayload{
			StreamSID:  c.streamSID,
			AccountSID: simAccountSID,
			CallSID:    c.callSID,
			Tracks:     []string{"inbound"},
			MediaFormat: mediastream.MediaFormat{
				Encoding:   "audio/x-mulaw",
				SampleRate: g711.SampleRate,
				Channels:   1,
			},
		},
	}
	if err := c.send(start); err != nil {
		return fmt.Errorf("send start: %w", err)
	}
	slog.Info("stream started", "stream", c.streamSID, "call", c.callSID,
		"audio", g711.Duration(len(c.src)).Round(time.Millisecond))

	readErr := make(chan error, 1)
	go func() { readErr <- c.readLoop(ctx) }()

	c.setState("streaming")
	runErr := c.streamAudio(ctx)

	c.setState("hanging up")
	stop := mediastream.Message{
		Event:     mediastream.EventStop,
		StreamSID: c.streamSID,
		Stop:      &mediastream.StopPayload{AccountSID: simAccountSID, CallSID: c.callSID},
	}
	if err := c.send(stop); err != nil && runErr == nil {
		runErr = fmt.Errorf("send stop: %w", err)
	}
	ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	// Wait briefly for the server's close; the deferred Close unblocks
	// the read loop either way.
	select {
	case err := <-readErr:
		if runErr == nil {
			runErr = err
		}
	case <-time.After(2 * time.Second):
	}

	if runErr != nil {
		c.setState("failed")
	} else {
		c.setState("done")
	}
	return runErr
}

// streamAudio sends the caller audio in real time, then silence until
// the linger window expires or the context is cancelled.
func (c *call) streamAudio(ctx context.Context) error {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	offset := 0
	chunk := 0
	var lingerUntil time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		var frame []byte
		if offset < len(c.src) {
			end := min(offset+frameBytes, len(c.src))
			frame = c.src[offset:end]
			offset = end
		} else {
			if lingerUntil.IsZero() {
				if c.opts.Linger <= 0 {
					return nil
				}
				lingerUntil = time.Now().Add(c.opts.Linger)
				c.setState("listening")
				slog.Info("caller audio done", "linger", c.opts.Linger)
			}
			if time.Now().After(lingerUntil) {
				return nil
			}
			frame = silenceFrame
		}

		chunk++
		msg := mediastream.Message{
			Event:     mediastream.EventMedia,
			StreamSID: c.streamSID,
			Media: &mediastream.MediaPayload{
				Track:     "inbound",
				Chunk:     strconv.Itoa(chunk),
				Timestamp: strconv.FormatInt(time.Since(c.startedAt()).Milliseconds(), 10),
				Payload:   encoding.StdBase64Data(frame),
			},
		}
		if err := c.send(msg); err != nil {
			return fmt.Errorf("send media: %w", err)
		}
		c.mu.Lock()
		c.txFrames++
		c.txBytes += len(frame)
		c.mu.Unlock()
	}
}

// readLoop consumes frames from the bridge: agent audio, marks to echo
// and clears.
func (c *call) readLoop(ctx context.Context) error {
	for {
		var msg mediastream.Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		switch msg.Event {
		case mediastream.EventMedia:
			if msg.Media == nil {
				continue
			}
			c.mu.Lock()
			c.rxFrames++
			c.rxBytes += len(msg.Media.Payload)
			if c.opts.Capture {
				c.received = append(c.received, msg.Media.Payload...)
			}
			c.mu.Unlock()

		case mediastream.EventMark:
			if msg.Mark == nil {
				continue
			}
			name := msg.Mark.Name
			c.mu.Lock()
			c.marksRx++
			c.mu.Unlock()
			slog.Debug("mark", "name", name)
			time.AfterFunc(c.opts.MarkDelay, func() { c.echoMark(name) })

		case mediastream.EventClear:
			c.mu.Lock()
			c.clears++
			c.mu.Unlock()
			slog.Info("clear received, dropping buffered playback")

		default:
			slog.Debug("event", "kind", msg.Event)
		}
	}
}

func (c *call) echoMark(name string) {
	msg := mediastream.Message{
		Event:     mediastream.EventMark,
		StreamSID: c.streamSID,
		Mark:      &mediastream.MarkPayload{Name: name},
	}
	if err := c.send(msg); err != nil {
		return
	}
	c.mu.Lock()
	c.marksTx++
	c.mu.Unlock()
}

// send stamps the sequence number and writes one frame. Safe for
// concurrent use.
func (c *call) send(msg mediastream.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	msg.SequenceNumber = strconv.Itoa(c.seq)
	return c.ws.WriteJSON(msg)
}

func (c *call) setState(s string) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *call) status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *call) startedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startAt
}

// statsLines renders the counters for the status frame.
func (c *call) statsLines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var elapsed time.Duration
	if !c.startAt.IsZero() {
		elapsed = time.Since(c.startAt).Round(time.Second)
	}
	return []string{
		fmt.Sprintf("%s  →  %s", c.callSID, c.url),
		fmt.Sprintf("sent      %5d frames  %8s", c.txFrames, cli.FormatBytes(int64(c.txBytes))),
		fmt.Sprintf("received  %5d frames  %8s", c.rxFrames, cli.FormatBytes(int64(c.rxBytes))),
		fmt.Sprintf("marks %d/%d  clears %d  elapsed %s", c.marksTx, c.marksRx, c.clears, elapsed),
	}
}

func (c *call) summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("sent %d frames (%s), received %d frames (%s), marks %d/%d, clears %d",
		c.txFrames, cli.FormatBytes(int64(c.txBytes)),
		c.rxFrames, cli.FormatBytes(int64(c.rxBytes)),
		c.marksTx, c.marksRx, c.clears)
}

// saveReceived writes captured agent audio as an 8 kHz µ-law WAV.
func (c *call) saveReceived(path string) error {
	c.mu.Lock()
	data := bytes.Clone(c.received)
	c.mu.Unlock()
	if len(data) == 0 {
		return fmt.Errorf("no audio received; nothing to save")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := wav.EncodeULaw(f, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
