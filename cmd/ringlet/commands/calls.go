package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ringlet-ai/ringlet/pkg/calllog"
	"github.com/ringlet-ai/ringlet/pkg/cli"
	"github.com/ringlet-ai/ringlet/pkg/kv"
)

var (
	callsDataDir string
	callsOutput  string
	callsJQ      string
	callsLimit   int
	callsAll     bool
)

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "Inspect the call log",
	Long: `Inspect calls recorded by the bridge service.

Examples:
  ringlet calls list
  ringlet calls list --output json --jq '.[].caller'
  ringlet calls show 4f2a
  ringlet calls delete 4f2a`,
}

var callsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded calls, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openCallLog()
		if err != nil {
			return err
		}
		defer closeStore()

		var records []*calllog.Record
		for rec, err := range store.List(cmd.Context()) {
			if err != nil {
				return err
			}
			records = append(records, rec)
			if !callsAll && callsLimit > 0 && len(records) >= callsLimit {
				break
			}
		}

		if callsOutput != "" || callsJQ != "" {
			return cli.Output(records, cli.OutputOptions{
				Format: cli.OutputFormat(callsOutput),
				Query:  callsJQ,
			})
		}

		if len(records) == 0 {
			fmt.Println("No calls recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCALLER\tSTARTED\tDURATION\tTOOLS\tTURNS")
		for _, rec := range records {
			caller := rec.Caller
			if caller == "" {
				caller = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
				shortID(rec.ID),
				caller,
				rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
				cli.FormatDuration(rec.Duration.Duration()),
				len(rec.Tools),
				len(rec.Transcript))
		}
		w.Flush()
		fmt.Printf("(%d calls)\n", len(records))
		return nil
	},
}

var callsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one call record",
	Long: `Show a call record by id. A unique prefix of the id is enough.

Examples:
  ringlet calls show 4f2a
  ringlet calls show 4f2a --output json
  ringlet calls show 4f2a --jq '.summary.text' --output raw`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openCallLog()
		if err != nil {
			return err
		}
		defer closeStore()

		rec, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return cli.Output(rec, cli.OutputOptions{
			Format: cli.OutputFormat(callsOutput),
			Query:  callsJQ,
		})
	},
}

var callsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one call record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openCallLog()
		if err != nil {
			return err
		}
		defer closeStore()

		rec, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := store.Delete(cmd.Context(), rec.ID); err != nil {
			return err
		}
		cli.PrintSuccess("Deleted call %s", rec.ID)
		return nil
	},
}

func init() {
	callsCmd.PersistentFlags().StringVar(&callsDataDir, "data-dir", "", "call log directory (overrides context)")
	callsCmd.PersistentFlags().StringVar(&callsOutput, "output", "", "output format: yaml, json, raw")
	callsCmd.PersistentFlags().StringVar(&callsJQ, "jq", "", "jq expression applied to the output")

	callsListCmd.Flags().IntVar(&callsLimit, "limit", 20, "max calls to list")
	callsListCmd.Flags().BoolVar(&callsAll, "all", false, "list all calls (ignore limit)")

	callsCmd.AddCommand(callsListCmd)
	callsCmd.AddCommand(callsShowCmd)
	callsCmd.AddCommand(callsDeleteCmd)
	rootCmd.AddCommand(callsCmd)
}

// testCallLogOverride is set during tests to run the calls commands
// against a shared in-memory store.
var testCallLogOverride kv.Store

// openCallLog opens the badger-backed call log. The caller closes it
// when done.
func openCallLog() (*calllog.Store, func() error, error) {
	if testCallLogOverride != nil {
		return calllog.NewStore(testCallLogOverride), func() error { return nil }, nil
	}

	dir := callsDataDir
	if dir == "" {
		if cfg, err := getConfig(); err == nil {
			if tctx, err := cfg.ResolveContext(contextName); err == nil {
				dir = tctx.DataDir
			}
		}
	}
	if dir == "" {
		paths, err := cli.NewPaths()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve data dir: %w", err)
		}
		if err := paths.EnsureDataDir(); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		dir = paths.DataDir()
	}

	db, err := kv.NewBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		return nil, nil, fmt.Errorf("open call log at %s: %w", dir, err)
	}
	return calllog.NewStore(db), db.Close, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
