package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ringlet-ai/ringlet/pkg/audio/g711"
	"github.com/ringlet-ai/ringlet/pkg/audio/resample"
	"github.com/ringlet-ai/ringlet/pkg/audio/tone"
	"github.com/ringlet-ai/ringlet/pkg/audio/wav"
	"github.com/ringlet-ai/ringlet/pkg/cli"
)

const defaultStreamURL = "ws://localhost:8080/voice/stream"

const frameWidth = 80

var (
	flagWAV       string
	flagSave      string
	flagCallSID   string
	flagMarkDelay time.Duration
	flagLinger    time.Duration
	flagPlain     bool
)

var callCmd = &cobra.Command{
	Use:   "call [url]",
	Short: "Place a simulated call",
	Long: `Place a simulated call against a running bridge.

The url defaults to ` + defaultStreamURL + `. Caller audio comes from
--wav (16-bit PCM or µ-law WAV, any rate) or, without it, a short
generated tone. After the caller audio ends the stream stays open for
--linger, sending silence frames, so the agent's reply can be heard.

Examples:
  ringsim call
  ringsim call ws://localhost:9000/voice/stream --wav hello.wav
  ringsim call --save reply.wav --linger 30s`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVar(&flagWAV, "wav", "", "caller audio WAV file (default: generated tone)")
	callCmd.Flags().StringVar(&flagSave, "save", "", "write received agent audio to this WAV file")
	callCmd.Flags().StringVar(&flagCallSID, "call-sid", "", "call SID to report (default: generated)")
	callCmd.Flags().DurationVar(&flagMarkDelay, "mark-delay", 150*time.Millisecond, "playback delay before echoing marks")
	callCmd.Flags().DurationVar(&flagLinger, "linger", 5*time.Second, "how long to keep the call open after the caller audio ends")
	callCmd.Flags().BoolVar(&flagPlain, "plain", false, "log lines only, no status frame")

	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	url := defaultStreamURL
	if len(args) == 1 {
		url = args[0]
	}

	var src []byte
	var err error
	if flagWAV != "" {
		src, err = loadWAVULaw(flagWAV)
		if err != nil {
			return err
		}
	} else {
		src, err = tone.ULaw(tone.Options{})
		if err != nil {
			return err
		}
	}

	callSID := flagCallSID
	if callSID == "" {
		callSID = newSID("CA")
	}

	c := newCall(url, newSID("MZ"), callSID, src, callOptions{
		MarkDelay: flagMarkDelay,
		Linger:    flagLinger,
		Capture:   flagSave != "",
	})

	// Route logs into the status frame unless running plain.
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logDest := io.Writer(os.Stderr)
	var lw *cli.LogWriter
	if !flagPlain {
		lw = cli.NewLogWriter(6)
		logDest = lw
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logDest, &slog.HandlerOptions{
		Level: level,
	})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("hanging up...")
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- c.run(ctx) }()

	if flagPlain {
		err = <-errCh
		fmt.Println(c.summary())
	} else {
		err = renderLoop(c, lw, errCh)
	}

	if flagSave != "" {
		if werr := c.saveReceived(flagSave); werr != nil {
			if err == nil {
				err = werr
			} else {
				slog.Error("save failed", "path", flagSave, "error", werr)
			}
		} else {
			fmt.Printf("received audio written to %s\n", flagSave)
		}
	}
	return err
}

// renderLoop repaints the status frame in place until the call ends.
func renderLoop(c *call, lw *cli.LogWriter, errCh <-chan error) error {
	frame := cli.Frame{
		Styles: cli.NewStyles(cli.DefaultTheme),
		Title:  "RINGSIM",
		Sections: []cli.Section{
			{Label: "Call", Lines: 4, Content: c.statsLines},
			{Label: "Log", Lines: 6, Content: lw.Lines},
		},
		Help: "Ctrl+C hangs up",
	}

	painted := false
	paint := func() {
		frame.Status = c.status()
		if painted {
			fmt.Printf("\033[%dA", frame.Height())
		}
		fmt.Print(frame.Render(frameWidth) + "\n")
		painted = true
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-errCh:
			paint()
			return err
		case <-ticker.C:
			paint()
		}
	}
}

// loadWAVULaw reads a WAV file and converts it to 8 kHz mono µ-law.
func loadWAVULaw(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	wf, err := wav.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if wf.Format == wav.FormatULaw {
		if wf.SampleRate != g711.SampleRate || wf.Channels != 1 {
			return nil, fmt.Errorf("%s: µ-law WAV must be 8 kHz mono", path)
		}
		return wf.Data, nil
	}
	if wf.Format != wav.FormatPCM16 || wf.Bits != 16 {
		return nil, fmt.Errorf("%s: unsupported WAV format %d (%d-bit)", path, wf.Format, wf.Bits)
	}
	if wf.Channels != 1 && wf.Channels != 2 {
		return nil, fmt.Errorf("%s: unsupported channel count %d", path, wf.Channels)
	}

	r, err := resample.New(bytes.NewReader(wf.Data),
		resample.Format{Rate: wf.SampleRate, Stereo: wf.Channels == 2},
		resample.Format{Rate: g711.SampleRate})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	pcm, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g711.Encode(pcm), nil
}
