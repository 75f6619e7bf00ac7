package mediastream

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ringlet-ai/ringlet/pkg/encoding"
)

// ErrNoStream is returned by outbound sends before a start frame has
// announced the stream SID. Audio cannot be addressed to a stream that
// has not started.
var ErrNoStream = errors.New("mediastream: no stream started")

// ErrBadFrame marks an inbound frame that failed to decode. The
// connection stays open; callers skip the frame and read on.
var ErrBadFrame = errors.New("mediastream: bad frame")

// Conn wraps one call's Media Streams WebSocket.
//
// Read returns inbound frames one at a time and records the stream SID
// from the start frame. Outbound sends are serialized under a write
// lock and stamped with that SID.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	streamSID string

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established WebSocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Read returns the next inbound message.
//
// Malformed frames are reported as errors wrapping ErrBadFrame with the
// connection left open. Any other error is a transport failure and ends
// the stream.
func (c *Conn) Read() (*Message, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("mediastream: read: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}

	if msg.Event == EventStart && msg.Start != nil {
		c.mu.Lock()
		c.streamSID = msg.Start.StreamSID
		c.mu.Unlock()
	}

	return &msg, nil
}

// SendMedia sends one chunk of G.711 audio to the caller.
func (c *Conn) SendMedia(payload []byte) error {
	sid, err := c.sid()
	if err != nil {
		return err
	}
	return c.send(&Message{
		Event:     EventMedia,
		StreamSID: sid,
		Media:     &MediaPayload{Payload: encoding.StdBase64Data(payload)},
	})
}

// SendMark asks the provider to echo the named mark back once all audio
// queued before it has been played.
func (c *Conn) SendMark(name string) error {
	sid, err := c.sid()
	if err != nil {
		return err
	}
	return c.send(&Message{
		Event:     EventMark,
		StreamSID: sid,
		Mark:      &MarkPayload{Name: name},
	})
}

// SendClear drops all audio buffered on the provider side, cutting
// playback short.
func (c *Conn) SendClear() error {
	sid, err := c.sid()
	if err != nil {
		return err
	}
	return c.send(&Message{Event: EventClear, StreamSID: sid})
}

// StreamSID returns the stream SID announced by the start frame, or the
// empty string before the stream has started.
func (c *Conn) StreamSID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamSID
}

// RemoteAddr reports the peer address, for logging.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// Close closes the underlying WebSocket. Safe to call more than once
// and from any goroutine; a blocked Read unblocks with an error.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *Conn) sid() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streamSID == "" {
		return "", ErrNoStream
	}
	return c.streamSID, nil
}

func (c *Conn) send(msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("mediastream: write %s: %w", msg.Event, err)
	}
	return nil
}
