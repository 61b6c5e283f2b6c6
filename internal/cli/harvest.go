package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/roach88/tramites/internal/config"
	"github.com/roach88/tramites/internal/fetch"
	"github.com/roach88/tramites/internal/harvest"
	"github.com/roach88/tramites/internal/metrics"
	"github.com/roach88/tramites/internal/notify"
	"github.com/roach88/tramites/internal/store"
)

// HarvestOptions holds flags for the harvest command.
type HarvestOptions struct {
	*RootOptions
	DataDir    string
	MaxRecords int

	// Overrides for testing. Nil means the production implementation.
	Fetcher harvest.Fetcher
	Clock   harvest.Clock
	IDs     harvest.IDGenerator
}

// NewHarvestCommand creates the harvest command.
func NewHarvestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HarvestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Download the catalog and log changes since the last run",
		Long: `Download the procedures catalog, compare it with the previous snapshot in
the data directory and append the changes to modificaciones.csv and
adiciones.csv. The new snapshot replaces tramites.jsonl; entries whose
detail could not be fetched are written to errores.jsonl.

The first run in an empty data directory only stores the snapshot.

Exit codes:
  0 - Run completed
  1 - Run failed (catalog unreachable, nothing fetched)
  2 - Command error (bad config, unreadable files)

Examples:
  tramites harvest
  tramites harvest --data-dir ./data --max 50
  tramites harvest --config /etc/tramites.yaml --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarvest(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "", "data directory (overrides data.dir)")
	cmd.Flags().IntVar(&opts.MaxRecords, "max", 0, "fetch at most N procedures (overrides api.max_records)")

	return cmd
}

func runHarvest(opts *HarvestOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.DataDir != "" {
		cfg.Data.Dir = opts.DataDir
	}
	if opts.MaxRecords > 0 {
		cfg.API.MaxRecords = opts.MaxRecords
	}

	logger, err := opts.newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create data directory", err)
	}

	engine, err := buildEngine(EngineOptions{
		SchemaPath: cfg.SchemaPath(),
		Resource:   cfg.Data.Resource,
		Composite:  cfg.Data.Composite,
		Structural: cfg.Data.Structural,
	}, logger)
	if err != nil {
		return err
	}

	var ledger *store.Store
	if path := cfg.LedgerPath(); path != "" {
		ledger, err = store.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open ledger", err)
		}
		defer func() {
			if closeErr := ledger.Close(); closeErr != nil {
				logger.Errorf("error closing ledger: %v", closeErr)
			}
		}()
	}

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = newFetchClient(cfg, logger)
	}

	runner, err := harvest.NewRunner(harvest.Options{
		Fetcher:         fetcher,
		Engine:          engine,
		DataDir:         cfg.Data.Dir,
		Ledger:          ledger,
		Publisher:       publisher,
		Metrics:         metrics.New(),
		MetricsTextfile: cfg.Metrics.Textfile,
		Clock:           opts.Clock,
		IDs:             opts.IDs,
		Logger:          logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create runner", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := runner.Run(ctx)
	if err != nil {
		if errors.Is(err, harvest.ErrEmptyHarvest) || errors.Is(err, context.Canceled) {
			return WrapExitError(ExitFailure, "harvest failed", err)
		}
		var se *fetch.StatusError
		if errors.As(err, &se) {
			return WrapExitError(ExitFailure, "harvest failed", err)
		}
		return WrapExitError(ExitCommandError, "harvest failed", err)
	}

	f := opts.formatter(cmd)
	if f.Structured() {
		return f.Success(rep)
	}
	renderReport(cmd.OutOrStdout(), rep)
	return nil
}

func newFetchClient(cfg *config.Config, logger logrus.FieldLogger) *fetch.Client {
	return fetch.NewClient(fetch.Options{
		BaseURL:           cfg.API.BaseURL,
		PageSize:          cfg.API.PageSize,
		MaxConcurrent:     cfg.API.MaxConcurrent,
		MaxRecords:        cfg.API.MaxRecords,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Retry: fetch.RetryPolicy{
			MaxRetries: cfg.API.Retry.MaxRetries,
			BaseDelay:  cfg.API.Retry.BaseDelay,
		},
		UserAgent:  cfg.API.UserAgent,
		HTTPClient: &http.Client{Timeout: cfg.API.Timeout},
	}, logger)
}

// newPublisher connects to NATS when configured. A connection failure is
// logged and the run continues without notifications.
func newPublisher(cfg *config.Config, logger logrus.FieldLogger) notify.Publisher {
	if cfg.NATS.URL == "" {
		return notify.Noop{}
	}
	p, err := notify.NewNATSPublisher(notify.Options{
		URL:           cfg.NATS.URL,
		Subject:       cfg.NATS.Subject,
		MaxReconnect:  cfg.NATS.MaxReconnect,
		ReconnectWait: cfg.NATS.ReconnectWait,
	}, logger)
	if err != nil {
		logger.Warnf("notifications disabled: %v", err)
		return notify.Noop{}
	}
	return p
}

func renderReport(w io.Writer, rep harvest.Report) {
	fmt.Fprintf(w, "Run %s at %s\n", rep.RunID, rep.Timestamp)
	fmt.Fprintf(w, "  listed %d, fetched %d, failed %d", rep.Listed, rep.Fetched, rep.Failed)
	if rep.Rejected > 0 {
		fmt.Fprintf(w, ", rejected %d", rep.Rejected)
	}
	fmt.Fprintln(w)

	if rep.ColdStart {
		fmt.Fprintln(w, "  no previous snapshot: stored baseline, nothing compared")
		return
	}
	c := rep.Changes
	fmt.Fprintf(w, "  %d appeared, %d disappeared, %d modifications\n", c.Arrivals, c.Departures, c.Modifications)
	if c.Failures > 0 {
		fmt.Fprintf(w, "  %d comparisons failed\n", c.Failures)
	}
	fmt.Fprintf(w, "  modificaciones.csv +%d rows\n", c.ModificationsLog.Added)
	fmt.Fprintf(w, "  adiciones.csv +%d rows\n", c.EventsLog.Added)
}
