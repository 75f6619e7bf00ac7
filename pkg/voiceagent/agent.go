// Package voiceagent adapts a realtime model session to the semantic
// event stream the call bridge consumes: turns, speech chunks,
// interruptions, tool calls and handoffs. It keeps a playback ledger
// so that when the caller barges in, the conversation history is
// truncated to what the caller actually heard.
package voiceagent

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ringlet-ai/ringlet/pkg/openairt"
	"github.com/ringlet-ai/ringlet/pkg/toolkit"
)

// µ-law at 8 kHz.
const bytesPerMs = 8

// Transcript roles.
const (
	RoleCaller    = "caller"
	RoleAssistant = "assistant"
)

// TranscriptEntry is one finalized utterance of the call transcript.
type TranscriptEntry struct {
	Role string // RoleCaller or RoleAssistant
	Text string
	At   time.Time
}

// Config configures the agent session for one call.
type Config struct {
	// Model defaults to openairt.ModelGPTRealtime.
	Model string

	// Voice defaults to openairt.VoiceCedar.
	Voice string

	// Instructions is the system prompt.
	Instructions string

	// Tools holds the callable function tools. Optional.
	Tools *toolkit.Registry

	// HandoffPrefix marks tool names that request a transfer instead
	// of a local dispatch. Defaults to toolkit.DefaultHandoffPrefix.
	HandoffPrefix string

	// TurnDetection overrides the default server VAD.
	TurnDetection *openairt.TurnDetection

	Temperature *float64

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// wireSession is the slice of *openairt.Session the agent drives.
type wireSession interface {
	UpdateSession(config *openairt.SessionConfig) error
	AppendAudio(audio []byte) error
	AddUserMessage(text string) error
	AddFunctionCallOutput(callID string, output string) error
	TruncateItem(itemID string, contentIndex int, audioEndMs int) error
	CreateResponse(opts *openairt.ResponseCreateOptions) error
	CancelResponse() error
	Events() iter.Seq2[*openairt.ServerEvent, error]
	Close() error
}

// Agent is one call's conversation session. Safe for use by the
// bridge's send and receive loops concurrently.
type Agent struct {
	sess   wireSession
	tools  *toolkit.Registry
	prefix string
	log    *slog.Logger

	closed atomic.Bool

	mu         sync.Mutex
	sent       map[string]int // utterance -> speech bytes emitted
	played     map[string]int // utterance -> speech bytes confirmed played
	transcript []TranscriptEntry
	usage      openairt.Usage
}

// New dials the realtime API and configures the session for
// telephony: G.711 µ-law both ways, server VAD, input transcription,
// and the registry's tool definitions.
func New(ctx context.Context, client *openairt.Client, cfg Config) (*Agent, error) {
	model := cfg.Model
	if model == "" {
		model = openairt.ModelGPTRealtime
	}
	sess, err := client.Connect(ctx, &openairt.ConnectConfig{Model: model})
	if err != nil {
		return nil, fmt.Errorf("voiceagent: connect: %w", err)
	}
	a, err := newAgent(sess, cfg)
	if err != nil {
		sess.Close()
		return nil, err
	}
	return a, nil
}

func newAgent(sess wireSession, cfg Config) (*Agent, error) {
	a := &Agent{
		sess:   sess,
		tools:  cfg.Tools,
		prefix: cfg.HandoffPrefix,
		log:    cfg.Logger,
		sent:   make(map[string]int),
		played: make(map[string]int),
	}
	if a.tools == nil {
		a.tools = toolkit.NewRegistry()
	}
	if a.prefix == "" {
		a.prefix = toolkit.DefaultHandoffPrefix
	}
	if a.log == nil {
		a.log = slog.Default()
	}

	voice := cfg.Voice
	if voice == "" {
		voice = openairt.VoiceCedar
	}
	detection := cfg.TurnDetection
	if detection == nil {
		detection = &openairt.TurnDetection{Type: openairt.VADServer}
	}
	update := &openairt.SessionConfig{
		Modalities:              []string{"text", "audio"},
		Instructions:            cfg.Instructions,
		Voice:                   voice,
		InputAudioFormat:        openairt.AudioFormatG711ULaw,
		OutputAudioFormat:       openairt.AudioFormatG711ULaw,
		InputAudioTranscription: &openairt.TranscriptionConfig{Model: "whisper-1"},
		TurnDetection:           detection,
		Temperature:             cfg.Temperature,
	}
	defs, err := a.tools.Definitions()
	if err != nil {
		return nil, fmt.Errorf("voiceagent: tool definitions: %w", err)
	}
	for _, def := range defs {
		update.Tools = append(update.Tools, openairt.Tool{
			Type:        "function",
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}
	if err := sess.UpdateSession(update); err != nil {
		return nil, fmt.Errorf("voiceagent: configure session: %w", err)
	}
	return a, nil
}

// SendAudio forwards caller audio (µ-law, 8 kHz) to the model.
func (a *Agent) SendAudio(ctx context.Context, audio []byte) error {
	return a.sess.AppendAudio(audio)
}

// SendMessage injects a user message and requests a response. The
// bridge uses it once per call, for the greeting instruction.
func (a *Agent) SendMessage(ctx context.Context, text string) error {
	if err := a.sess.AddUserMessage(text); err != nil {
		return err
	}
	return a.sess.CreateResponse(nil)
}

// ReportPlayed records that byteCount bytes of an utterance, starting
// at contentOffset, finished playing on the telephony leg. Reports may
// arrive out of order; the high-water mark wins.
func (a *Agent) ReportPlayed(utteranceID string, contentOffset, byteCount int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if end := contentOffset + byteCount; end > a.played[utteranceID] {
		a.played[utteranceID] = end
	}
}

// Transcript returns the finalized utterances in completion order.
func (a *Agent) Transcript() []TranscriptEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.transcript)
}

// Usage returns token usage accumulated across all responses.
func (a *Agent) Usage() openairt.Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage
}

// Close tears down the wire session. Safe to call more than once.
func (a *Agent) Close() error {
	a.closed.Store(true)
	return a.sess.Close()
}

// Events maps the wire event stream to semantic events. Single-use;
// the stream ends when the session closes or the transport fails.
// Tool dispatches run inline, so a slow tool delays later events.
func (a *Agent) Events(ctx context.Context) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		var (
			cur      string // utterance with unsettled speech
			curIdx   int
			active   bool // a response is in flight
			partials = make(map[string]*strings.Builder)
		)
		for ev, err := range a.sess.Events() {
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				if !a.closed.Load() {
					yield(Event{}, err)
				}
				return
			}
			switch ev.Type {
			case openairt.EventTypeResponseCreated:
				active = true
				if !yield(Event{Kind: KindTurnStarted}, nil) {
					return
				}

			case openairt.EventTypeResponseDone:
				active = false
				a.recordUsage(ev.Response)
				if !yield(Event{Kind: KindTurnEnded}, nil) {
					return
				}

			case openairt.EventTypeResponseAudioDelta:
				if len(ev.Audio) == 0 {
					break
				}
				cur, curIdx = ev.ItemID, ev.ContentIndex
				off := a.noteSent(ev.ItemID, len(ev.Audio))
				chunk := Event{
					Kind:          KindSpeechChunk,
					UtteranceID:   ev.ItemID,
					ContentIndex:  ev.ContentIndex,
					ContentOffset: off,
					Audio:         ev.Audio,
				}
				if !yield(chunk, nil) {
					return
				}

			case openairt.EventTypeInputAudioBufferSpeechStarted:
				playedMs, truncate, outstanding := a.interruptPlayback(cur)
				if !outstanding {
					break
				}
				if truncate {
					if err := a.sess.TruncateItem(cur, curIdx, playedMs); err != nil {
						a.log.Warn("utterance truncate failed", "item", cur, "error", err)
					}
				}
				if active {
					if err := a.sess.CancelResponse(); err != nil {
						a.log.Warn("response cancel failed", "error", err)
					}
					active = false
				}
				cur = ""
				if !yield(Event{Kind: KindSpeechInterrupted}, nil) {
					return
				}

			case openairt.EventTypeResponseFunctionCallArgumentsDone:
				if !a.handleFunctionCall(ctx, ev, yield) {
					return
				}

			case openairt.EventTypeResponseAudioTranscriptDelta:
				b := partials[ev.ItemID]
				if b == nil {
					b = &strings.Builder{}
					partials[ev.ItemID] = b
				}
				b.WriteString(ev.Delta)

			case openairt.EventTypeResponseAudioTranscriptDone:
				text := ev.Transcript
				if text == "" && partials[ev.ItemID] != nil {
					text = partials[ev.ItemID].String()
				}
				delete(partials, ev.ItemID)
				a.appendTranscript(RoleAssistant, text)

			case openairt.EventTypeConversationItemInputAudioTranscriptionCompleted:
				a.appendTranscript(RoleCaller, ev.Transcript)

			case openairt.EventTypeError:
				if ev.ErrorDetail == nil {
					break
				}
				if !yield(Event{Kind: KindSessionError, Err: ev.ErrorDetail.ToError()}, nil) {
					return
				}

			default:
				a.log.Debug("ignoring server event", "type", ev.Type)
			}
		}
	}
}

// handleFunctionCall routes one completed function call: handoff
// prefixes become handoff events, everything else is dispatched
// through the registry and its output submitted back with a
// continuation response. Reports whether iteration should continue.
func (a *Agent) handleFunctionCall(ctx context.Context, ev *openairt.ServerEvent, yield func(Event, error) bool) bool {
	args := ev.Arguments
	if args == "" {
		args = "{}"
	}
	if target, ok := toolkit.HandoffTarget(ev.Name, a.prefix); ok {
		a.submitToolOutput(ev.Name, ev.CallID, `{"status":"transfer_requested"}`)
		handoff := Event{
			Kind:     KindHandoffRequested,
			Tool:     ev.Name,
			ToolArgs: args,
			Target:   target,
		}
		return yield(handoff, nil)
	}

	if !yield(Event{Kind: KindToolStarted, Tool: ev.Name, ToolArgs: args}, nil) {
		return false
	}
	out, derr := a.tools.Dispatch(ctx, ev.Name, args)
	a.submitToolOutput(ev.Name, ev.CallID, out)
	done := Event{
		Kind:       KindToolEnded,
		Tool:       ev.Name,
		ToolArgs:   args,
		ToolOutput: out,
		Err:        derr,
	}
	return yield(done, nil)
}

func (a *Agent) submitToolOutput(name, callID, output string) {
	if err := a.sess.AddFunctionCallOutput(callID, output); err != nil {
		a.log.Warn("tool output submit failed", "tool", name, "error", err)
		return
	}
	if err := a.sess.CreateResponse(nil); err != nil {
		a.log.Warn("tool continuation failed", "tool", name, "error", err)
	}
}

func (a *Agent) noteSent(utteranceID string, n int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	off := a.sent[utteranceID]
	a.sent[utteranceID] = off + n
	return off
}

// interruptPlayback reports whether any emitted speech is still
// unplayed and, if so, drops it from the ledger. playedMs is the
// confirmed playback position of cur; truncate is set when cur itself
// has unplayed speech.
func (a *Agent) interruptPlayback(cur string) (playedMs int, truncate, outstanding bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, n := range a.sent {
		if a.played[id] < n {
			outstanding = true
			break
		}
	}
	if !outstanding {
		return 0, false, false
	}
	truncate = cur != "" && a.played[cur] < a.sent[cur]
	playedMs = a.played[cur] / bytesPerMs
	for id, n := range a.sent {
		if p := a.played[id]; p < n {
			a.sent[id] = p
		}
	}
	return playedMs, truncate, true
}

func (a *Agent) appendTranscript(role, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transcript = append(a.transcript, TranscriptEntry{Role: role, Text: text, At: time.Now()})
}

func (a *Agent) recordUsage(resp *openairt.ResponseResource) {
	if resp == nil || resp.Usage == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.usage.TotalTokens += resp.Usage.TotalTokens
	a.usage.InputTokens += resp.Usage.InputTokens
	a.usage.OutputTokens += resp.Usage.OutputTokens
}
