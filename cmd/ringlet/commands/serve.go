package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/ringlet-ai/ringlet/pkg/analytics"
	"github.com/ringlet-ai/ringlet/pkg/bridge"
	"github.com/ringlet-ai/ringlet/pkg/calllog"
	"github.com/ringlet-ai/ringlet/pkg/callinfo"
	"github.com/ringlet-ai/ringlet/pkg/cli"
	"github.com/ringlet-ai/ringlet/pkg/kv"
	"github.com/ringlet-ai/ringlet/pkg/mediastream"
	"github.com/ringlet-ai/ringlet/pkg/openairt"
	"github.com/ringlet-ai/ringlet/pkg/recorder"
	"github.com/ringlet-ai/ringlet/pkg/storage"
	"github.com/ringlet-ai/ringlet/pkg/summary"
	"github.com/ringlet-ai/ringlet/pkg/toolkit"
	"github.com/ringlet-ai/ringlet/pkg/voiceagent"
)

const defaultListenAddr = ":8080"

// builtinTools holds tools compiled into the binary. The agent file
// shapes or disables them by name and declares handoff targets.
var builtinTools []*toolkit.Tool

// RegisterTool adds compiled-in tools available to every call.
func RegisterTool(tools ...*toolkit.Tool) {
	builtinTools = append(builtinTools, tools...)
}

var (
	flagListen     string
	flagPublicHost string
	flagAgentFile  string
	flagDataDir    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the telephony bridge service",
	Long: `Run the telephony bridge service.

The service hosts the answer webhook (POST /voice/answer, returning
TwiML that connects the call to the media stream) and the stream
WebSocket (/voice/stream). Each accepted stream becomes one call
session bridged with an OpenAI Realtime session, and every completed
call is written to the call log.

Example:
  ringlet serve
  ringlet serve --listen :9000 --agent ./support-agent.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "listen address (overrides context, default :8080)")
	serveCmd.Flags().StringVar(&flagPublicHost, "public-host", "", "externally reachable host for TwiML (overrides context)")
	serveCmd.Flags().StringVar(&flagAgentFile, "agent", "", "agent definition file (overrides context)")
	serveCmd.Flags().StringVar(&flagDataDir, "data-dir", "", "call log directory (overrides context)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Setup logging
	level := slog.LevelInfo
	if isVerbose() {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
	logger := slog.Default()

	tctx, err := getContext()
	if err != nil {
		return err
	}
	if tctx.OpenAIKey == "" {
		return fmt.Errorf("context %q has no openai_api_key", tctx.Name)
	}

	agentPath := flagAgentFile
	if agentPath == "" {
		agentPath = tctx.AgentFile
	}
	if agentPath == "" {
		return fmt.Errorf("no agent file: set agent_file in the context or pass --agent")
	}
	agent, err := cli.LoadAgent(agentPath)
	if err != nil {
		return err
	}

	reg := toolkit.NewRegistry()
	if err := reg.Register(builtinTools...); err != nil {
		return err
	}
	if err := agent.Tools.Apply(reg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down...")
		cancel()
	}()

	// Recording storage; nil means calls are not recorded.
	store, err := buildStore(ctx, tctx)
	if err != nil {
		return err
	}
	var record func(string) *recorder.Recorder
	if store != nil {
		record = func(callID string) *recorder.Recorder {
			return recorder.New(store, callID, recorder.WithLogger(logger))
		}
	}

	// Call log.
	dataDir := flagDataDir
	if dataDir == "" {
		dataDir = tctx.DataDir
	}
	if dataDir == "" {
		paths, err := cli.NewPaths()
		if err != nil {
			return fmt.Errorf("resolve data dir: %w", err)
		}
		if err := paths.EnsureDataDir(); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		dataDir = paths.DataDir()
	}
	db, err := kv.NewBadger(kv.BadgerOptions{Dir: dataDir, Logger: logger})
	if err != nil {
		return fmt.Errorf("open call log: %w", err)
	}
	defer db.Close()

	// Caller lookups.
	var caller callinfo.Provider
	if tctx.TwilioAccountSID != "" && tctx.TwilioAuthToken != "" {
		caller = callinfo.NewTwilio(tctx.TwilioAccountSID, tctx.TwilioAuthToken)
	}

	// Analytics.
	var tracker analytics.Tracker = analytics.Nop{}
	if tctx.AnalyticsKey != "" {
		seg := analytics.NewSegment(tctx.AnalyticsKey, analytics.WithLogger(logger))
		defer seg.Close()
		tracker = seg
	}

	summarizer, err := buildSummarizer(ctx, tctx)
	if err != nil {
		return err
	}

	deps := &callDeps{
		agent:      agent,
		model:      tctx.RealtimeModel,
		client:     openairt.NewClient(tctx.OpenAIKey),
		tools:      reg,
		caller:     caller,
		tracker:    tracker,
		record:     record,
		callLog:    calllog.NewStore(db),
		summarizer: summarizer,
		log:        logger,
	}

	listen := flagListen
	if listen == "" {
		listen = tctx.ListenAddr
	}
	if listen == "" {
		listen = defaultListenAddr
	}
	publicHost := flagPublicHost
	if publicHost == "" {
		publicHost = tctx.PublicHost
	}

	srv := mediastream.NewServer(mediastream.ServerConfig{
		Addr:       listen,
		PublicHost: publicHost,
		Logger:     logger,
	}, deps.handle)

	model := tctx.RealtimeModel
	if model == "" {
		model = openairt.ModelGPTRealtime
	}
	logger.Info("bridge ready", "listen", listen, "agent", agentPath, "model", model, "tools", len(reg.Names()))

	return srv.Run(ctx)
}

// callDeps carries everything one call needs.
type callDeps struct {
	agent      *cli.Agent
	model      string
	client     *openairt.Client
	tools      *toolkit.Registry
	caller     callinfo.Provider
	tracker    analytics.Tracker
	record     func(string) *recorder.Recorder
	callLog    *calllog.Store
	summarizer summary.Summarizer
	log        *slog.Logger
}

// handle runs one accepted stream to completion and persists the
// outcome.
func (d *callDeps) handle(ctx context.Context, conn *mediastream.Conn) {
	log := d.log.With("remote", conn.RemoteAddr())

	// Dial runs on this goroutine inside Run, so reading agentSess
	// after Run returns is safe.
	var agentSess *voiceagent.Agent
	sess := bridge.NewCallSession(conn, bridge.Options{
		Dial: func(ctx context.Context) (bridge.RemoteSession, error) {
			a, err := voiceagent.New(ctx, d.client, voiceagent.Config{
				Model:         d.model,
				Voice:         d.agent.Voice,
				Instructions:  d.agent.Instructions,
				Tools:         d.tools,
				HandoffPrefix: d.agent.Tools.Prefix(),
				Logger:        log,
			})
			if err != nil {
				return nil, err
			}
			agentSess = a
			return a, nil
		},
		Caller:            d.caller,
		Analytics:         d.tracker,
		Record:            d.record,
		Tools:             d.tools,
		Greeting:          d.agent.Greeting,
		FlushInterval:     d.agent.FlushInterval.Duration(),
		IdleTimeout:       d.agent.IdleTimeout.Duration(),
		DisableFillerTone: d.agent.DisableFillerTone,
		Logger:            log,
	})

	if err := sess.Run(ctx); err != nil {
		log.Error("call failed", "error", err)
	}

	d.persist(sess, agentSess, log)
}

// persist writes the finished call to the call log. Calls that never
// reached a start frame leave no record.
func (d *callDeps) persist(sess *bridge.CallSession, agentSess *voiceagent.Agent, log *slog.Logger) {
	if sess.CallID() == "" {
		return
	}

	rec := calllog.NewRecord(sess.StreamID(), sess.CallID(), sess.CallerNumber())
	if t := sess.StartedAt(); !t.IsZero() {
		rec.StartedAt = t.UTC()
	}
	for _, o := range sess.ToolOutcomes() {
		tc := calllog.ToolCall{Name: o.Name, At: o.At}
		if o.Err != nil {
			tc.Error = o.Err.Error()
		}
		rec.Tools = append(rec.Tools, tc)
	}
	rec.Recordings = sess.Recordings()
	if agentSess != nil {
		for _, t := range agentSess.Transcript() {
			rec.Transcript = append(rec.Transcript, calllog.Turn{Role: t.Role, Text: t.Text, At: t.At})
		}
		if u := agentSess.Usage(); u.TotalTokens > 0 {
			log.Debug("session usage",
				"input_tokens", u.InputTokens, "output_tokens", u.OutputTokens)
		}
	}
	rec.Finish(rec.StartedAt.Add(sess.Duration()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if d.summarizer != nil && len(rec.Transcript) > 0 {
		sum, err := d.summarizer.Summarize(ctx, transcriptText(rec.Transcript))
		if err != nil {
			log.Warn("summarization failed", "call", rec.CallID, "error", err)
		} else {
			rec.Summary = sum
		}
	}

	if err := d.callLog.Put(ctx, rec); err != nil {
		log.Error("call record not saved", "call", rec.CallID, "error", err)
		return
	}
	log.Info("call recorded", "call", rec.CallID, "duration", rec.Duration.String())
}

func transcriptText(turns []calllog.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Text)
	}
	return b.String()
}

// buildStore selects the recording backend from the context. A nil
// storage section disables recording.
func buildStore(ctx context.Context, tctx *cli.Context) (storage.FileStore, error) {
	sc := tctx.Storage
	if sc == nil {
		return nil, nil
	}
	if sc.Bucket != "" {
		var opts []func(*awsconfig.LoadOptions) error
		if sc.Region != "" {
			opts = append(opts, awsconfig.WithRegion(sc.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return storage.NewS3(s3.NewFromConfig(awsCfg), sc.Bucket, sc.Prefix), nil
	}
	if sc.Dir == "" {
		return nil, fmt.Errorf("storage: set dir or bucket")
	}
	return storage.NewDir(sc.Dir)
}

// buildSummarizer selects the post-call summarization backend. A nil
// summary section disables it.
func buildSummarizer(ctx context.Context, tctx *cli.Context) (summary.Summarizer, error) {
	sc := tctx.Summary
	if sc == nil {
		return nil, nil
	}
	switch sc.Backend {
	case "openai":
		key := sc.APIKey
		if key == "" {
			key = tctx.OpenAIKey
		}
		var opts []summary.OpenAIOption
		if sc.Model != "" {
			opts = append(opts, summary.WithOpenAIModel(sc.Model))
		}
		return summary.NewOpenAI(key, opts...)
	case "gemini":
		if sc.APIKey == "" {
			return nil, fmt.Errorf("summary: gemini backend needs api_key")
		}
		var opts []summary.GeminiOption
		if sc.Model != "" {
			opts = append(opts, summary.WithGeminiModel(sc.Model))
		}
		return summary.NewGemini(ctx, sc.APIKey, opts...)
	default:
		return nil, fmt.Errorf("summary: unknown backend %q", sc.Backend)
	}
}
