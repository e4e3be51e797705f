package sweep

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/drsweep/internal/distance"
	"github.com/tensorplex-labs/drsweep/internal/embedding"
	"github.com/tensorplex-labs/drsweep/internal/fidelity"
	"github.com/tensorplex-labs/drsweep/internal/paramset"
	"github.com/tensorplex-labs/drsweep/internal/store"
)

func helix(n int) *mat.Dense {
	data := mat.NewDense(n, 3, nil)
	for i := range n {
		t := float64(i) * 0.7
		data.Set(i, 0, math.Cos(t))
		data.Set(i, 1, math.Sin(t))
		data.Set(i, 2, float64(i)/4)
	}
	return data
}

func seeds(n int) []any {
	out := make([]any, n)
	for i := range n {
		out[i] = i
	}
	return out
}

func testConfig(sets int) Config {
	return Config{
		Dataset:        "helix",
		Kernel:         embedding.KernelMDS,
		Grid:           paramset.Grid{"seed": seeds(sets), "n_components": {2}},
		Metrics:        []string{"euclidean"},
		CheckpointSize: 5,
		Workers:        4,
		Seed:           7,
	}
}

func openStore(t *testing.T, dir string) *store.SQLiteStore {
	t.Helper()
	st, err := store.Open(context.Background(), store.Path(dir, "helix", "mds"), "helix", "mds")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// failingOn fails the embedding of one seed and runs classical MDS for the rest.
func failingOn(seed int) embedding.Embedder {
	return embedding.Func(func(ctx context.Context, hp paramset.Hyperparameters, d mat.Symmetric) (*mat.Dense, error) {
		if s, _ := hp.Int("seed", -1); s == seed {
			return nil, errors.New("kernel exploded")
		}
		return embedding.MDS{}.Embed(ctx, hp, d)
	})
}

func TestResultBuffer(t *testing.T) {
	b := NewResultBuffer()
	for i := range 4 {
		b.Publish(ResultRecord{ParameterSet: paramset.ParameterSet{ID: int64(i)}})
	}
	b.Fail(Failure{ParameterSet: paramset.ParameterSet{ID: 9}, State: StateEmbedding, Err: errors.New("x")})

	assert.Equal(t, 5, b.Published())
	assert.Equal(t, 4, b.Pending())
	select {
	case <-b.Notify():
	default:
		t.Fatal("expected a pending notification")
	}

	first := b.Drain(3)
	require.Len(t, first, 3)
	assert.Equal(t, int64(0), first[0].ID)
	assert.Equal(t, []int64{3}, b.PendingIDs())
	assert.Len(t, b.Drain(0), 1)
	assert.Empty(t, b.Drain(0))
	assert.Len(t, b.Failures(), 1)
	assert.Equal(t, 5, b.Published())
}

type memStore struct {
	mu      sync.Mutex
	batches [][]store.Record
	failAt  int
}

func (m *memStore) AppendBatch(_ context.Context, _ string, records []store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAt > 0 && len(m.batches)+1 == m.failAt {
		return errors.New("disk full")
	}
	m.batches = append(m.batches, records)
	return nil
}

func (m *memStore) ExistingKeys(context.Context) (paramset.KeySet, error) {
	return paramset.NewKeySet(), nil
}

func (m *memStore) NextID(context.Context) (int64, error) { return 0, nil }

func (m *memStore) sizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.batches))
	for i, b := range m.batches {
		out[i] = len(b)
	}
	return out
}

func TestCoordinatorCheckpoints(t *testing.T) {
	st := &memStore{}
	b := NewResultBuffer()
	for i := range 12 {
		b.Publish(ResultRecord{
			ParameterSet: paramset.ParameterSet{ID: int64(i), Hyperparameters: paramset.Hyperparameters{"seed": i}},
			Coordinates:  mat.NewDense(2, 1, []float64{0, 1}),
			Objectives:   map[string]float64{"stress": 0.1},
		})
	}

	stats, err := NewCoordinator(st, b, 12, 5, "run").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.CheckpointDrains)
	assert.Equal(t, 1, stats.FinalDrains)
	assert.Equal(t, 12, stats.Persisted)
	assert.Equal(t, []int{5, 5, 2}, st.sizes())
}

func TestCoordinatorFlushesOnCancel(t *testing.T) {
	st := &memStore{}
	b := NewResultBuffer()
	for i := range 3 {
		b.Publish(ResultRecord{ParameterSet: paramset.ParameterSet{ID: int64(i), Hyperparameters: paramset.Hyperparameters{"seed": i}}})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err := NewCoordinator(st, b, 10, 5, "run").Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stats.FinalDrains)
	assert.Equal(t, []int{3}, st.sizes())
}

type fakeProgress struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (p *fakeProgress) Checkpoint(_ context.Context, ev ProgressEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func TestRunPersistsEverySet(t *testing.T) {
	st := openStore(t, t.TempDir())
	progress := &fakeProgress{}
	reportPath := filepath.Join(t.TempDir(), "report.json")

	cfg := testConfig(12)
	cfg.ReportPath = reportPath
	r, err := NewRunner(cfg, helix(15), embedding.MDS{}, st, WithProgress(progress))
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, report.Expected)
	assert.Len(t, report.Succeeded, 12)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 2, report.CheckpointDrains)
	assert.Equal(t, 1, report.FinalDrains)

	count, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, count)

	records, err := st.Records(context.Background())
	require.NoError(t, err)
	for _, rec := range records {
		assert.Equal(t, r.RunID(), rec.RunID)
		for _, name := range append(fidelity.DefaultObjectives(), fidelity.ObjectiveRuntime) {
			assert.Contains(t, rec.Objectives, name)
		}
	}

	require.Len(t, progress.events, 3)
	last := progress.events[2]
	assert.True(t, last.Final)
	assert.Equal(t, 12, last.Persisted)

	var onDisk Report
	raw, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	require.NoError(t, sonic.Unmarshal(raw, &onDisk))
	assert.Equal(t, report.RunID, onDisk.RunID)
	assert.Len(t, onDisk.Succeeded, 12)
}

func TestRunRecordsFailures(t *testing.T) {
	st := openStore(t, t.TempDir())
	r, err := NewRunner(testConfig(12), helix(15), failingOn(4), st)
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Succeeded, 11)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, StateEmbedding.String(), report.Failed[0].State)
	assert.Contains(t, report.Failed[0].Error, "kernel exploded")

	count, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, count)
}

func TestWorkerUnknownMetric(t *testing.T) {
	data := helix(10)
	dist, err := distance.Matrix(distance.Euclidean, data)
	require.NoError(t, err)
	ref, err := fidelity.NewReference(dist)
	require.NoError(t, err)

	buffer := NewResultBuffer()
	w := NewWorker(0, embedding.MDS{}, fidelity.NewEvaluator(), map[string]fidelity.Reference{"euclidean": ref}, buffer)
	shard := []paramset.ParameterSet{
		{ID: 1, Hyperparameters: paramset.Hyperparameters{"metric": "hamming", "n_components": 2}},
		{ID: 2, Hyperparameters: paramset.Hyperparameters{"n_components": 2}},
		{ID: 3, Hyperparameters: paramset.Hyperparameters{"metric": "euclidean", "n_components": 2}},
	}
	require.NoError(t, w.Run(context.Background(), shard))

	assert.Equal(t, []int64{3}, buffer.PendingIDs())
	failures := buffer.Failures()
	require.Len(t, failures, 2)
	for _, f := range failures {
		assert.Equal(t, StateEmbedding, f.State)
		assert.ErrorIs(t, f.Err, ErrMissingMetric)
	}
}

func TestRunIndependentOfWorkerCount(t *testing.T) {
	objectives := func(workers int) map[string]map[string]float64 {
		st := openStore(t, t.TempDir())
		cfg := testConfig(9)
		cfg.Workers = workers
		r, err := NewRunner(cfg, helix(15), embedding.MDS{}, st)
		require.NoError(t, err)
		_, err = r.Run(context.Background())
		require.NoError(t, err)

		records, err := st.Records(context.Background())
		require.NoError(t, err)
		out := map[string]map[string]float64{}
		for _, rec := range records {
			delete(rec.Objectives, fidelity.ObjectiveRuntime)
			out[rec.Key] = rec.Objectives
		}
		return out
	}

	one := objectives(1)
	assert.Len(t, one, 9)
	for _, w := range []int{2, 5} {
		got := objectives(w)
		require.Len(t, got, len(one))
		for key, want := range one {
			for name, v := range want {
				assert.InDelta(t, v, got[key][name], 1e-9, "%s %s with %d workers", key, name, w)
			}
		}
	}
}

func TestRunResumes(t *testing.T) {
	dir := t.TempDir()
	st := openStore(t, dir)

	r, err := NewRunner(testConfig(6), helix(15), embedding.MDS{}, st)
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	r, err = NewRunner(testConfig(12), helix(15), embedding.MDS{}, st)
	require.NoError(t, err)
	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, report.Resumed)
	assert.Equal(t, 6, report.Expected)
	assert.Equal(t, []int64{6, 7, 8, 9, 10, 11}, report.Succeeded)

	count, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, count)

	r, err = NewRunner(testConfig(12), helix(15), embedding.MDS{}, st)
	require.NoError(t, err)
	report, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Expected)
	assert.Equal(t, 12, report.Resumed)
}

func TestRunStorageFailure(t *testing.T) {
	st := &memStore{failAt: 2}
	r, err := NewRunner(testConfig(12), helix(15), embedding.MDS{}, st)
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrStorageWrite)
	assert.Len(t, report.Succeeded, 5)
	assert.GreaterOrEqual(t, len(report.Unpersisted), 5)
	for _, id := range report.Unpersisted {
		assert.False(t, slices.Contains(report.Succeeded, id), "id %d both persisted and unpersisted", id)
	}
	assert.NotEmpty(t, report.Error)
}

func TestRunCancelled(t *testing.T) {
	st := openStore(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())

	slow := embedding.Func(func(ctx context.Context, hp paramset.Hyperparameters, d mat.Symmetric) (*mat.Dense, error) {
		if s, _ := hp.Int("seed", 0); s >= 3 {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return embedding.MDS{}.Embed(ctx, hp, d)
	})
	cfg := testConfig(12)
	cfg.Workers = 1
	r, err := NewRunner(cfg, helix(15), slow, st)
	require.NoError(t, err)

	report, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Failed)

	count, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(report.Succeeded), count)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"no dataset", func(c *Config) { c.Dataset = "" }, false},
		{"no metric", func(c *Config) { c.Metrics = nil }, false},
		{"metric in grid", func(c *Config) { c.Metrics = nil; c.Grid["metric"] = []any{"cosine"} }, true},
		{"empty values", func(c *Config) { c.Grid["n_iter"] = nil }, false},
		{"negative workers", func(c *Config) { c.Workers = -1 }, false},
		{"colliding column names", func(c *Config) { c.Grid["N-Components"] = []any{3} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(3)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

type fakeKV struct {
	values map[string]string
	lists  map[string][]string
	ttl    time.Duration
}

func (f *fakeKV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	f.values[key] = value
	f.ttl = ttl
	return nil
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	return f.values[key], nil
}

func (f *fakeKV) LLen(_ context.Context, key string) (int64, error) {
	return int64(len(f.lists[key])), nil
}

func (f *fakeKV) RPush(_ context.Context, key string, values ...string) error {
	f.lists[key] = append(f.lists[key], values...)
	return nil
}

func TestRedisProgress(t *testing.T) {
	kv := &fakeKV{values: map[string]string{}, lists: map[string][]string{}}
	p := NewRedisProgress(kv, "", time.Hour)

	for i := 1; i <= 2; i++ {
		require.NoError(t, p.Checkpoint(context.Background(), ProgressEvent{RunID: "r1", Persisted: 5 * i, Expected: 10}))
	}

	assert.Equal(t, "drsweep:progress:r1", p.LatestKey("r1"))
	assert.Len(t, kv.lists["drsweep:events:r1"], 2)
	assert.Equal(t, time.Hour, kv.ttl)

	latest, events, ok, err := p.Latest(context.Background(), "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10, latest.Persisted)
	assert.Equal(t, int64(2), events)

	_, _, ok, err = p.Latest(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}
