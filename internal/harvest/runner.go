package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/roach88/tramites/internal/changelog"
	"github.com/roach88/tramites/internal/diff"
	"github.com/roach88/tramites/internal/fetch"
	"github.com/roach88/tramites/internal/metrics"
	"github.com/roach88/tramites/internal/notify"
	"github.com/roach88/tramites/internal/snapshot"
	"github.com/roach88/tramites/internal/store"
	"github.com/roach88/tramites/internal/tramite"
	"github.com/roach88/tramites/internal/value"
)

// ErrEmptyHarvest is returned when the catalog listed entries but no
// detail could be fetched. The previous snapshot is left untouched so the
// next run does not report every procedure as gone and back again.
var ErrEmptyHarvest = errors.New("no procedure could be fetched")

// Fetcher is the part of fetch.Client a run needs.
type Fetcher interface {
	List(ctx context.Context) ([]fetch.Entry, error)
	FetchAll(ctx context.Context, entries []fetch.Entry) ([]value.Object, []fetch.Failure, error)
}

// Options configures a Runner. Fetcher, Engine and DataDir are required.
type Options struct {
	Fetcher Fetcher
	Engine  *diff.Engine
	DataDir string

	// Ledger, when set, receives one row per run.
	Ledger *store.Store
	// Publisher receives non-empty change batches. Nil means notify.Noop.
	Publisher notify.Publisher
	// Metrics is updated after every run; MetricsTextfile, when set, is
	// rewritten with the registry contents.
	Metrics         *metrics.Metrics
	MetricsTextfile string

	Clock  Clock
	IDs    IDGenerator
	Logger logrus.FieldLogger
}

// Runner executes batch runs against one data directory.
type Runner struct {
	fetcher   Fetcher
	engine    *diff.Engine
	dataDir   string
	ledger    *store.Store
	publisher notify.Publisher
	metrics   *metrics.Metrics
	textfile  string
	clock     Clock
	ids       IDGenerator
	logger    logrus.FieldLogger
}

// NewRunner validates opts and fills optional collaborators with defaults.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("harvest: fetcher is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("harvest: engine is required")
	}
	if opts.DataDir == "" {
		return nil, errors.New("harvest: data dir is required")
	}

	r := &Runner{
		fetcher:   opts.Fetcher,
		engine:    opts.Engine,
		dataDir:   opts.DataDir,
		ledger:    opts.Ledger,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		textfile:  opts.MetricsTextfile,
		clock:     opts.Clock,
		ids:       opts.IDs,
		logger:    opts.Logger,
	}
	if r.publisher == nil {
		r.publisher = notify.Noop{}
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	if r.clock == nil {
		r.clock = SystemClock{}
	}
	if r.ids == nil {
		r.ids = UUIDv7Generator{}
	}
	if r.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		r.logger = l
	}
	return r, nil
}

// RecordsPath is the JSONL file holding the last persisted snapshot.
func (r *Runner) RecordsPath() string { return filepath.Join(r.dataDir, snapshot.RecordsFile) }

// FailuresPath is the JSONL file listing the records the last run could not fetch.
func (r *Runner) FailuresPath() string { return filepath.Join(r.dataDir, snapshot.FailuresFile) }

// LogPath is the CSV file backing the given change log.
func (r *Runner) LogPath(t changelog.Table) string {
	return filepath.Join(r.dataDir, t.FileName())
}

// Run performs one batch run.
//
// Only a listing failure, a cancelled context, an unreadable previous
// snapshot or a failed file write abort the run. Ledger, notification and
// metrics failures are logged and do not change the outcome.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	started := r.clock.Now()
	rep := Report{
		RunID:     r.ids.Generate(),
		Timestamp: diff.FormatTimestamp(started),
		StartedAt: started,
	}
	log := r.logger.WithFields(logrus.Fields{"run_id": rep.RunID, "timestamp": rep.Timestamp})
	log.Info("run started")

	phase := time.Now()
	entries, err := r.fetcher.List(ctx)
	if err != nil {
		return rep, fmt.Errorf("list catalog: %w", err)
	}
	rep.Listed = len(entries)

	objs, failures, err := r.fetcher.FetchAll(ctx, entries)
	if err != nil {
		return rep, fmt.Errorf("fetch details: %w", err)
	}
	r.metrics.ObservePhase("fetch", phase)
	rep.Fetched = len(objs)
	rep.Failed = len(failures)

	curr, rejected := tramite.FromObjects(objs)
	rep.Rejected = len(rejected)
	rep.Duplicates = curr.Duplicates()
	rep.Records = curr.Len()
	if rep.Rejected > 0 {
		log.WithField("count", rep.Rejected).Warn("dropped records without id")
	}
	if curr.Len() == 0 && rep.Listed > 0 {
		return rep, ErrEmptyHarvest
	}

	prev, err := snapshot.Load(r.RecordsPath())
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		rep.ColdStart = true
		log.Info("no previous snapshot, skipping comparison")
	case err != nil:
		return rep, fmt.Errorf("load previous snapshot: %w", err)
	default:
		phase = time.Now()
		res := r.Compare(prev, curr, rep.Timestamp)
		r.metrics.ObservePhase("detect", phase)

		modStats, evStats, err := r.WriteLogs(res)
		if err != nil {
			return rep, err
		}
		rep.Changes = newChanges(res, modStats, evStats)
	}

	if err := r.persist(curr, failures); err != nil {
		return rep, err
	}
	if rep.SnapshotHash, err = curr.Digest(); err != nil {
		log.Warnf("snapshot digest: %v", err)
	}

	rep.FinishedAt = r.clock.Now()
	r.record(ctx, log, rep, failures)

	log.WithFields(logrus.Fields{
		"listed":     rep.Listed,
		"fetched":    rep.Fetched,
		"failed":     rep.Failed,
		"cold_start": rep.ColdStart,
	}).Info("run finished")
	return rep, nil
}

// Compare runs change detection between two snapshots.
func (r *Runner) Compare(prev, curr *tramite.Snapshot, timestamp string) *diff.Result {
	return r.engine.Detect(prev, curr, timestamp)
}

// WriteLogs appends a result to both change logs in the data directory.
func (r *Runner) WriteLogs(res *diff.Result) (mods, events changelog.Stats, err error) {
	mods, events, err = AppendLogs(r.dataDir, res)
	if err != nil {
		return mods, events, err
	}
	r.logger.WithFields(logrus.Fields{
		"modifications_added": mods.Added,
		"events_added":        events.Added,
	}).Debug("change logs updated")
	return mods, events, nil
}

// AppendLogs appends a result to modificaciones.csv and adiciones.csv in dir.
func AppendLogs(dir string, res *diff.Result) (mods, events changelog.Stats, err error) {
	mods, err = changelog.Append(filepath.Join(dir, changelog.Modifications.FileName()),
		changelog.Modifications, changelog.ModificationRows(res.Modifications))
	if err != nil {
		return mods, events, fmt.Errorf("append %s: %w", changelog.Modifications.Name, err)
	}

	events, err = changelog.Append(filepath.Join(dir, changelog.Events.FileName()),
		changelog.Events, changelog.EventRows(res.Events))
	if err != nil {
		return mods, events, fmt.Errorf("append %s: %w", changelog.Events.Name, err)
	}
	return mods, events, nil
}

// persist overwrites the raw dataset and the failure list. A stale failure
// list from an earlier run is removed when this run had none.
func (r *Runner) persist(curr *tramite.Snapshot, failures []fetch.Failure) error {
	if err := snapshot.WriteRecords(r.RecordsPath(), curr.Records()); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}

	if len(failures) == 0 {
		if err := os.Remove(r.FailuresPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale failures: %w", err)
		}
		return nil
	}
	if err := snapshot.WriteJSONL(r.FailuresPath(), failures); err != nil {
		return fmt.Errorf("persist failures: %w", err)
	}
	return nil
}

// record updates the ledger, notifies subscribers and refreshes metrics.
func (r *Runner) record(ctx context.Context, log logrus.FieldLogger, rep Report, failures []fetch.Failure) {
	if r.ledger != nil {
		if err := r.ledger.WriteRun(ctx, ledgerRun(rep)); err != nil {
			log.Warnf("ledger: %v", err)
		} else if err := r.ledger.WriteFetchFailures(ctx, rep.RunID, ledgerFailures(rep.RunID, failures)); err != nil {
			log.Warnf("ledger: %v", err)
		}
	}

	if rep.Changes != nil && !rep.Changes.Result.Empty() {
		if err := r.publisher.Publish(ctx, notify.NewBatch(rep.RunID, rep.Changes.Result)); err != nil {
			log.Warnf("notify: %v", err)
		}
	}

	m := r.metrics
	m.ListedTotal.Add(float64(rep.Listed))
	m.FetchedTotal.Add(float64(rep.Fetched))
	m.FetchFailedTotal.Add(float64(rep.Failed))
	m.SnapshotRecords.Set(float64(rep.Records))
	if c := rep.Changes; c != nil {
		m.ChangesTotal.WithLabelValues(metrics.KindArrival).Add(float64(c.Arrivals))
		m.ChangesTotal.WithLabelValues(metrics.KindDeparture).Add(float64(c.Departures))
		m.ChangesTotal.WithLabelValues(metrics.KindModification).Add(float64(c.Modifications))
		m.DiffFailuresTotal.Add(float64(c.Failures))
	}
	m.RunCompleted(rep.FinishedAt)

	if r.textfile != "" {
		if err := m.WriteTextfile(r.textfile); err != nil {
			log.Warnf("metrics: %v", err)
		}
	}
}

func ledgerRun(rep Report) store.Run {
	run := store.Run{
		ID:           rep.RunID,
		Timestamp:    rep.Timestamp,
		Listed:       rep.Listed,
		Fetched:      rep.Fetched,
		Failed:       rep.Failed,
		SnapshotHash: rep.SnapshotHash,
		ColdStart:    rep.ColdStart,
		StartedAt:    rep.StartedAt,
		FinishedAt:   rep.FinishedAt,
	}
	if c := rep.Changes; c != nil {
		run.Arrivals = c.Arrivals
		run.Departures = c.Departures
		run.Modifications = c.Modifications
		run.DiffFailures = c.Failures
	}
	return run
}

func ledgerFailures(runID string, failures []fetch.Failure) []store.FetchFailure {
	out := make([]store.FetchFailure, 0, len(failures))
	for _, f := range failures {
		out = append(out, store.FetchFailure{
			RunID:     runID,
			Slug:      f.Slug,
			TramiteID: value.Text(f.ID),
			Nombre:    f.Nombre,
			Error:     f.Error,
		})
	}
	return out
}
