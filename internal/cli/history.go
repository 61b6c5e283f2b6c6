package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/tramites/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
	RunID    string
}

// RunDetail is the structured output of history --run.
type RunDetail struct {
	Run      store.Run            `json:"run" yaml:"run"`
	Failures []store.FetchFailure `json:"failures" yaml:"failures"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs from the ledger",
		Long: `List past harvest runs recorded in the SQLite ledger, most recent first.
With --run, show one run and the procedures it failed to fetch.

Examples:
  tramites history
  tramites history --limit 5 --format json
  tramites history --run 0190c3a4-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to ledger database (default from config)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs (0 for all)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show a single run")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	path := opts.Database
	if path == "" {
		cfg, err := opts.loadConfig()
		if err != nil {
			return err
		}
		path = cfg.LedgerPath()
	}
	if path == "" {
		return NewExitError(ExitCommandError, "ledger is disabled; pass --db")
	}
	// Opening would create an empty database.
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "ledger not found", err)
	}

	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	defer st.Close()

	f := opts.formatter(cmd)

	if opts.RunID != "" {
		run, err := st.ReadRun(ctx, opts.RunID)
		if errors.Is(err, store.ErrRunNotFound) {
			return WrapExitError(ExitFailure, "unknown run", err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		failures, err := st.ReadFetchFailures(ctx, opts.RunID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read fetch failures", err)
		}
		detail := RunDetail{Run: run, Failures: failures}
		if f.Structured() {
			return f.Success(detail)
		}
		renderRunDetail(cmd.OutOrStdout(), detail)
		return nil
	}

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	if f.Structured() {
		return f.Success(runs)
	}
	renderRuns(cmd.OutOrStdout(), runs)
	return nil
}

func renderRuns(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tRUN\tFETCHED\tFAILED\tAPARECE\tDESAPARECE\tMODIFICACIONES")
	for _, r := range runs {
		changes := fmt.Sprintf("%d\t%d\t%d", r.Arrivals, r.Departures, r.Modifications)
		if r.ColdStart {
			changes = "-\t-\t-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", r.Timestamp, r.ID, r.Fetched, r.Failed, changes)
	}
	tw.Flush()
}

func renderRunDetail(w io.Writer, d RunDetail) {
	r := d.Run
	fmt.Fprintf(w, "Run %s at %s\n", r.ID, r.Timestamp)
	fmt.Fprintf(w, "  started %s, took %s\n", r.StartedAt.Format("2006-01-02 15:04:05"), r.FinishedAt.Sub(r.StartedAt))
	fmt.Fprintf(w, "  listed %d, fetched %d, failed %d\n", r.Listed, r.Fetched, r.Failed)
	if r.ColdStart {
		fmt.Fprintln(w, "  cold start")
	} else {
		fmt.Fprintf(w, "  %d appeared, %d disappeared, %d modifications, %d comparison failures\n",
			r.Arrivals, r.Departures, r.Modifications, r.DiffFailures)
	}
	fmt.Fprintf(w, "  snapshot %s\n", r.SnapshotHash)
	for _, f := range d.Failures {
		fmt.Fprintf(w, "  failed %s (%s): %s\n", f.Slug, f.TramiteID, f.Error)
	}
}
