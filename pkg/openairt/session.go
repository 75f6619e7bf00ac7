package openairt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Session is one Realtime conversation over a WebSocket. A background
// goroutine reads server events into the Events iterator; client
// events are sent by the methods below. Methods are safe for
// concurrent use.
type Session struct {
	conn      *websocket.Conn
	closeCh   chan struct{}
	eventsCh  chan eventOrErr
	closeOnce sync.Once
	writeMu   sync.Mutex

	mu        sync.Mutex
	sessionID string
}

type eventOrErr struct {
	event *ServerEvent
	err   error
}

func newEventID() string {
	return "evt_" + uuid.New().String()[:12]
}

// UpdateSession applies configuration; call it after session.created.
func (s *Session) UpdateSession(config *SessionConfig) error {
	return s.send(map[string]any{
		"event_id": newEventID(),
		"type":     EventTypeSessionUpdate,
		"session":  config,
	})
}

// AppendAudio appends raw audio bytes, in the session's configured
// input format, to the input buffer.
func (s *Session) AppendAudio(audio []byte) error {
	return s.AppendAudioBase64(base64.StdEncoding.EncodeToString(audio))
}

// AppendAudioBase64 appends already-encoded audio to the input buffer.
func (s *Session) AppendAudioBase64(audioBase64 string) error {
	return s.send(map[string]any{
		"event_id": newEventID(),
		"type":     EventTypeInputAudioBufferAppend,
		"audio":    audioBase64,
	})
}

// CommitInput commits the input buffer as a user turn. Only needed in
// manual mode; server VAD commits on its own.
func (s *Session) CommitInput() error {
	return s.send(map[string]any{
		"event_id": newEventID(),
		"type":     EventTypeInputAudioBufferCommit,
	})
}

// ClearInput drops the uncommitted input buffer.
func (s *Session) ClearInput() error {
	return s.send(map[string]any{
		"event_id": newEventID(),
		"type":     EventTypeInputAudioBufferClear,
	})
}

// AddUserMessage adds a user text message to the conversation.
func (s *Session) AddUserMessage(text string) error {
	return s.send(map[string]any{
		"event_id": newEventID(),
		"type":     EventTypeConversationItemCreate,
		"item": &ConversationItem{
			Type: "message",
			Role: "user",
			Content: []ContentPart{
				{Type: "input_text", Text: text},
			},
		},
	})
}

// AddFunctionCallOutput reports a tool result back to the model.
func (s *Session) AddFunctionCallOutput(callID string, output string) error {
	return s.send(map[string]any{
		"event_id": newEventID(),
		"type":     EventTypeConversationItemCreate,
		"item": &ConversationItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	})
}

// TruncateItem cuts an assistant audio item down to audioEndMs. Used
// after an interruption so the conversation history matches what the
// caller actually heard.
func (s *Session) TruncateItem(itemID string, contentIndex int, audioEndMs int) error {
	return s.send(map[string]any{
		"event_id":      newEventID(),
		"type":          EventTypeConversationItemTruncate,
		"item_id":       itemID,
		"content_index": contentIndex,
		"audio_end_ms":  audioEndMs,
	})
}

// CreateResponse asks the model to respond now. Pass nil for session
// defaults; in VAD mode the server normally triggers responses itself.
func (s *Session) CreateResponse(opts *ResponseCreateOptions) error {
	event := map[string]any{
		"event_id": newEventID(),
		"type":     EventTypeResponseCreate,
	}
	if opts != nil {
		event["response"] = opts
	}
	return s.send(event)
}

// CancelResponse cancels the in-progress response.
func (s *Session) CancelResponse() error {
	return s.send(map[string]any{
		"event_id": newEventID(),
		"type":     EventTypeResponseCancel,
	})
}

// SendRaw sends an arbitrary client event, for anything the helpers do
// not cover.
func (s *Session) SendRaw(event map[string]any) error {
	return s.send(event)
}

// Events iterates server events until the session closes or a
// transport error is yielded. Iteration stops after an error.
func (s *Session) Events() iter.Seq2[*ServerEvent, error] {
	return func(yield func(*ServerEvent, error) bool) {
		for {
			select {
			case <-s.closeCh:
				return
			case item, ok := <-s.eventsCh:
				if !ok {
					return
				}
				if !yield(item.event, item.err) {
					return
				}
				if item.err != nil {
					return
				}
			}
		}
	}
}

// SessionID returns the server-assigned session ID, empty before
// session.created arrives.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Close tears the connection down. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		err = s.conn.Close()
	})
	return err
}

func (s *Session) send(event map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		if data, err := json.Marshal(event); err == nil {
			str := string(data)
			if len(str) > 500 {
				str = str[:500] + "..."
			}
			slog.Debug("realtime send", "content", str)
		}
	}

	return s.conn.WriteJSON(event)
}

func (s *Session) readLoop() {
	defer close(s.eventsCh)

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closeCh:
			case s.eventsCh <- eventOrErr{err: fmt.Errorf("openairt: read: %w", err)}:
			}
			return
		}

		if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			str := string(message)
			if len(str) > 1000 {
				str = str[:1000] + "..."
			}
			slog.Debug("realtime recv", "len", len(message), "content", str)
		}

		event, err := parseEvent(message)
		if err != nil {
			select {
			case <-s.closeCh:
				return
			case s.eventsCh <- eventOrErr{err: err}:
			}
			continue
		}

		if event.Type == EventTypeSessionCreated && event.Session != nil {
			s.mu.Lock()
			s.sessionID = event.Session.ID
			s.mu.Unlock()
		}

		select {
		case <-s.closeCh:
			return
		case s.eventsCh <- eventOrErr{event: event}:
		}
	}
}

func parseEvent(message []byte) (*ServerEvent, error) {
	var event ServerEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return nil, fmt.Errorf("openairt: parse event: %w", err)
	}
	event.Raw = message

	// Audio deltas arrive base64 in the delta field.
	if event.Type == EventTypeResponseAudioDelta && event.Delta != "" {
		if decoded, err := base64.StdEncoding.DecodeString(event.Delta); err == nil {
			event.Audio = decoded
		}
	}

	return &event, nil
}
