package harvest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tramites/internal/changelog"
	"github.com/roach88/tramites/internal/diff"
	"github.com/roach88/tramites/internal/fetch"
	"github.com/roach88/tramites/internal/metrics"
	"github.com/roach88/tramites/internal/notify"
	"github.com/roach88/tramites/internal/schema"
	"github.com/roach88/tramites/internal/snapshot"
	"github.com/roach88/tramites/internal/store"
	tu "github.com/roach88/tramites/internal/testutil"
	"github.com/roach88/tramites/internal/value"
)

var t0 = time.Date(2024, 5, 1, 14, 5, 0, 0, time.UTC)

type fakeFetcher struct {
	entries  []fetch.Entry
	records  []value.Object
	failures []fetch.Failure
	listErr  error
}

func (f *fakeFetcher) List(context.Context) ([]fetch.Entry, error) {
	return f.entries, f.listErr
}

func (f *fakeFetcher) FetchAll(context.Context, []fetch.Entry) ([]value.Object, []fetch.Failure, error) {
	return f.records, f.failures, nil
}

type capturePublisher struct {
	mu      sync.Mutex
	batches []notify.Batch
}

func (p *capturePublisher) Publish(_ context.Context, b notify.Batch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, b)
	return nil
}

func (p *capturePublisher) Close() {}

func objects(t *testing.T, lines ...string) []value.Object {
	t.Helper()
	out := make([]value.Object, len(lines))
	for i, l := range lines {
		o, err := value.DecodeObject([]byte(l))
		require.NoError(t, err)
		out[i] = o
	}
	return out
}

func listing(objs []value.Object) []fetch.Entry {
	out := make([]fetch.Entry, len(objs))
	for i, o := range objs {
		out[i] = fetch.Entry{ID: o.Get("id"), Slug: value.Text(o.Get("slug"))}
	}
	return out
}

type fixture struct {
	dir     string
	fetcher *fakeFetcher
	clock   *tu.FixedClock
	pub     *capturePublisher
	metrics *metrics.Metrics
	ledger  *store.Store
	runner  *Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	ledger, err := store.Open(filepath.Join(dir, "tramites.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	f := &fixture{
		dir:     dir,
		fetcher: &fakeFetcher{},
		clock:   tu.NewFixedClock(t0),
		pub:     &capturePublisher{},
		metrics: metrics.New(),
		ledger:  ledger,
	}

	decl := schema.FromMap(map[string]schema.Kind{"requisitos": schema.Composite})
	f.runner, err = NewRunner(Options{
		Fetcher:         f.fetcher,
		Engine:          diff.NewEngine(decl, diff.Options{}, nil),
		DataDir:         dir,
		Ledger:          ledger,
		Publisher:       f.pub,
		Metrics:         f.metrics,
		MetricsTextfile: filepath.Join(dir, "tramites.prom"),
		Clock:           f.clock,
		IDs:             tu.NewFixedIDGenerator("run-1", "run-2", "run-3"),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) serve(objs []value.Object) {
	f.fetcher.records = objs
	f.fetcher.entries = listing(objs)
}

var (
	day1 = []string{
		`{"id":1,"slug":"uno","nombre":"Licencia","entidad":{"nombre":"Alcaldia"},"costo":10,"requisitos":[{"descripcion":"CI"}]}`,
		`{"id":2,"slug":"dos","nombre":"Permiso","entidad":{"nombre":"Ministerio"},"costo":5,"requisitos":[]}`,
	}
	day2 = []string{
		`{"id":1,"slug":"uno","nombre":"Licencia","entidad":{"nombre":"Alcaldia"},"costo":12,"requisitos":[{"descripcion":"CI vigente"}]}`,
		`{"id":3,"slug":"tres","nombre":"Registro","entidad":{"nombre":"SEGIP"},"costo":0,"requisitos":[]}`,
	}
)

func TestRun_ColdStart(t *testing.T) {
	f := newFixture(t)
	f.serve(objects(t, day1...))

	rep, err := f.runner.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, rep.ColdStart)
	assert.Nil(t, rep.Changes)
	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, "2024-05-01T14:05+00:00", rep.Timestamp)
	assert.Equal(t, 2, rep.Listed)
	assert.Equal(t, 2, rep.Fetched)
	assert.NotEmpty(t, rep.SnapshotHash)

	snap, err := snapshot.Load(f.runner.RecordsPath())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())

	assert.NoFileExists(t, f.runner.LogPath(changelog.Modifications))
	assert.NoFileExists(t, f.runner.LogPath(changelog.Events))
	assert.NoFileExists(t, f.runner.FailuresPath())
	assert.Empty(t, f.pub.batches)

	run, err := f.ledger.ReadRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.True(t, run.ColdStart)
	assert.Equal(t, rep.SnapshotHash, run.SnapshotHash)
}

func TestRun_DetectsAndLogsChanges(t *testing.T) {
	f := newFixture(t)
	f.serve(objects(t, day1...))
	_, err := f.runner.Run(context.Background())
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	f.serve(objects(t, day2...))
	rep, err := f.runner.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, rep.Changes)
	assert.False(t, rep.ColdStart)
	assert.Equal(t, "2024-05-02T14:05+00:00", rep.Timestamp)
	assert.Equal(t, 1, rep.Changes.Arrivals)
	assert.Equal(t, 1, rep.Changes.Departures)
	assert.Equal(t, 2, rep.Changes.Modifications)
	assert.Equal(t, 2, rep.Changes.ModificationsLog.Added)
	assert.Equal(t, 2, rep.Changes.EventsLog.Added)

	mods, err := changelog.Read(f.runner.LogPath(changelog.Modifications), changelog.Modifications)
	require.NoError(t, err)
	require.Len(t, mods, 2)
	assert.Equal(t, "costo", mods[0][changelog.ColCampo])
	assert.Equal(t, "10", mods[0][changelog.ColViejo])
	assert.Equal(t, "12", mods[0][changelog.ColNuevo])
	assert.Equal(t, "requisitos[0].descripcion", mods[1][changelog.ColCampo])
	assert.Equal(t, "CI vigente", mods[1][changelog.ColNuevo])

	events, err := changelog.Read(f.runner.LogPath(changelog.Events), changelog.Events)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "2", events[0][changelog.ColID])
	assert.Equal(t, "desaparece", events[0][changelog.ColTipo])
	assert.Equal(t, "Ministerio", events[0][changelog.ColEntidad])
	assert.Equal(t, "3", events[1][changelog.ColID])
	assert.Equal(t, "aparece", events[1][changelog.ColTipo])

	require.Len(t, f.pub.batches, 1)
	assert.Equal(t, "run-2", f.pub.batches[0].RunID)
	assert.Equal(t, 1, f.pub.batches[0].Arrivals)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ChangesTotal.WithLabelValues(metrics.KindArrival)))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ChangesTotal.WithLabelValues(metrics.KindModification)))
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.FetchedTotal))

	prom, err := os.ReadFile(filepath.Join(f.dir, "tramites.prom"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(prom), "tramites_snapshot_records 2"))

	runs, err := f.ledger.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, 2, runs[0].Modifications)
}

func TestRun_UnchangedCatalogLeavesLogsAlone(t *testing.T) {
	f := newFixture(t)
	f.serve(objects(t, day1...))
	_, err := f.runner.Run(context.Background())
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	rep, err := f.runner.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, rep.Changes)
	assert.Zero(t, rep.Changes.Modifications)
	assert.False(t, rep.Changes.ModificationsLog.Written)
	assert.NoFileExists(t, f.runner.LogPath(changelog.Modifications))
	assert.NoFileExists(t, f.runner.LogPath(changelog.Events))
	assert.Empty(t, f.pub.batches)
}

func TestRun_FetchFailuresPersisted(t *testing.T) {
	f := newFixture(t)
	f.serve(objects(t, day1...))
	f.fetcher.failures = []fetch.Failure{
		{Entry: fetch.Entry{ID: value.Int(9), Nombre: "Nueve", Slug: "nueve"}, Error: "GET x: unexpected status 404"},
	}

	rep, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)

	objs, err := snapshot.ReadObjects(f.runner.FailuresPath())
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, value.String("nueve"), objs[0].Get("slug"))

	failures, err := f.ledger.ReadFetchFailures(context.Background(), rep.RunID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "9", failures[0].TramiteID)

	// Next run has no failures: the stale list goes away.
	f.fetcher.failures = nil
	f.clock.Advance(time.Hour)
	_, err = f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.NoFileExists(t, f.runner.FailuresPath())
}

func TestRun_ListFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.fetcher.listErr = errors.New("connection refused")

	_, err := f.runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list catalog")
	assert.NoFileExists(t, f.runner.RecordsPath())
}

func TestRun_EmptyHarvestKeepsPreviousSnapshot(t *testing.T) {
	f := newFixture(t)
	f.serve(objects(t, day1...))
	_, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	before, err := os.ReadFile(f.runner.RecordsPath())
	require.NoError(t, err)

	f.fetcher.records = nil
	_, err = f.runner.Run(context.Background())
	require.ErrorIs(t, err, ErrEmptyHarvest)

	after, err := os.ReadFile(f.runner.RecordsPath())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NoFileExists(t, f.runner.LogPath(changelog.Events))
}

func TestNewRunner_RequiresCollaborators(t *testing.T) {
	_, err := NewRunner(Options{})
	require.Error(t, err)

	_, err = NewRunner(Options{Fetcher: &fakeFetcher{}, Engine: diff.NewEngine(schema.Declaration{}, diff.Options{}, nil)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data dir")
}

func TestUUIDv7Generator(t *testing.T) {
	a := UUIDv7Generator{}.Generate()
	b := UUIDv7Generator{}.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
