// Package sweep runs a hyperparameter sweep: workers embed and score
// parameter sets concurrently while a single coordinator persists the results
// in checkpointed batches, so an interrupted sweep resumes where it stopped.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/drsweep/internal/distance"
	"github.com/tensorplex-labs/drsweep/internal/embedding"
	"github.com/tensorplex-labs/drsweep/internal/fidelity"
	"github.com/tensorplex-labs/drsweep/internal/paramset"
)

const DefaultCheckpointSize = 10

// Config is everything one sweep run needs besides its collaborators.
type Config struct {
	Dataset string
	Kernel  string

	Grid paramset.Grid
	// Metrics fills the metric hyperparameter when the grid does not list it.
	Metrics []string

	Interval   fidelity.KInterval
	Objectives []string
	Geodesic   bool

	CheckpointSize int
	Workers        int
	Seed           uint64

	ReportPath string
}

func (c Config) Validate() error {
	if c.Dataset == "" || c.Kernel == "" {
		return fmt.Errorf("%w: dataset and kernel are required", ErrInvalidConfig)
	}
	grid := c.grid()
	if err := grid.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, ok := grid[paramset.MetricKey]; !ok {
		return fmt.Errorf("%w: no distance metric configured", ErrInvalidConfig)
	}
	if c.CheckpointSize < 0 || c.Workers < 0 {
		return fmt.Errorf("%w: checkpoint size and workers must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (c Config) grid() paramset.Grid {
	return c.Grid.With(paramset.MetricKey, anySlice(c.Metrics)...)
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

func (c Config) checkpoint() int {
	if c.CheckpointSize > 0 {
		return c.CheckpointSize
	}
	return DefaultCheckpointSize
}

func anySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

type Runner struct {
	cfg      Config
	data     mat.Matrix
	embedder embedding.Embedder
	store    Store
	progress Progress
	runID    string
}

type RunnerOption func(*Runner)

func WithProgress(p Progress) RunnerOption {
	return func(r *Runner) {
		r.progress = p
	}
}

func WithRunID(id string) RunnerOption {
	return func(r *Runner) {
		r.runID = id
	}
}

// NewRunner binds a configuration to the original data, the embedding kernel
// and the result store.
func NewRunner(cfg Config, data mat.Matrix, embedder embedding.Embedder, st Store, opts ...RunnerOption) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if data == nil || embedder == nil || st == nil {
		return nil, fmt.Errorf("%w: data, embedder and store are required", ErrInvalidConfig)
	}
	r := &Runner{cfg: cfg, data: data, embedder: embedder, store: st}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	return r, nil
}

func (r *Runner) RunID() string { return r.runID }

// Run executes the sweep and always returns a report, also when it fails.
// Parameter sets already in the store are skipped.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     r.runID,
		Dataset:   r.cfg.Dataset,
		Kernel:    r.cfg.Kernel,
		StartedAt: time.Now().UTC(),
		Workers:   r.cfg.workers(),
		Succeeded: []int64{},
		Failed:    []FailedSet{},
	}
	logger := log.With().Str("run_id", r.runID).Str("dataset", r.cfg.Dataset).Str("kernel", r.cfg.Kernel).Logger()

	err := r.run(ctx, report)
	report.finish(err)

	if r.cfg.ReportPath != "" {
		if werr := report.WriteFile(r.cfg.ReportPath); werr != nil {
			logger.Error().Err(werr).Str("path", r.cfg.ReportPath).Msg("failed to write report")
			err = errors.Join(err, werr)
		}
	}

	logger.Info().
		Int("succeeded", len(report.Succeeded)).
		Int("failed", len(report.Failed)).
		Int("resumed", report.Resumed).
		Int("unpersisted", len(report.Unpersisted)).
		Str("duration", report.Duration).
		Msg("sweep finished")
	return report, err
}

func (r *Runner) run(ctx context.Context, report *Report) error {
	existing, err := r.store.ExistingKeys(ctx)
	if err != nil {
		return fmt.Errorf("read existing results: %w", err)
	}
	nextID, err := r.store.NextID(ctx)
	if err != nil {
		return fmt.Errorf("read next id: %w", err)
	}

	grid := r.cfg.grid()
	gen, err := paramset.Generate(grid, paramset.WithExclusions(existing), paramset.WithStartID(nextID))
	if err != nil {
		return err
	}
	report.GridSize = grid.Size()
	report.Expected = len(gen.Sets)
	report.Resumed = gen.Resumed
	report.Duplicates = gen.Duplicates

	log.Info().
		Str("run_id", r.runID).
		Int("grid_size", report.GridSize).
		Int("pending", len(gen.Sets)).
		Int("resumed", gen.Resumed).
		Int("duplicates", gen.Duplicates).
		Int64("first_id", nextID).
		Msg("parameter sets generated")

	if len(gen.Sets) == 0 {
		return nil
	}

	n, _ := r.data.Dims()
	evaluator := r.evaluator()
	if err := evaluator.Validate(n); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	references, err := r.precompute(metricsOf(gen.Sets))
	if err != nil {
		return err
	}

	buffer := NewResultBuffer()
	coordinator := NewCoordinator(r.store, buffer, len(gen.Sets), r.cfg.checkpoint(), r.runID)
	if r.progress != nil {
		coordinator.WithProgress(r.progress, r.cfg.Dataset, r.cfg.Kernel)
	}

	shards := paramset.Shard(gen.Sets, r.cfg.workers(), r.cfg.Seed)

	g, gctx := errgroup.WithContext(ctx)
	var stats CoordinatorStats
	g.Go(func() error {
		var err error
		stats, err = coordinator.Run(gctx)
		return err
	})
	for i, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		w := NewWorker(i, r.embedder, evaluator, references, buffer)
		g.Go(func() error {
			return w.Run(gctx, shard)
		})
	}
	err = g.Wait()

	report.CheckpointDrains = stats.CheckpointDrains
	report.FinalDrains = stats.FinalDrains
	report.Succeeded = append(report.Succeeded, stats.PersistedIDs...)
	report.addFailures(buffer.Failures())
	report.Unpersisted = append(stats.Unpersisted, buffer.PendingIDs()...)

	if err != nil {
		if len(report.Unpersisted) > 0 {
			log.Error().Str("run_id", r.runID).Ints64("unpersisted", report.Unpersisted).Msg("results left unpersisted")
		}
		return err
	}
	return nil
}

func (r *Runner) evaluator() *fidelity.Evaluator {
	opts := []fidelity.EvaluatorOption{fidelity.WithGeodesicStress(r.cfg.Geodesic)}
	if r.cfg.Interval != (fidelity.KInterval{}) {
		opts = append(opts, fidelity.WithInterval(r.cfg.Interval))
	}
	if len(r.cfg.Objectives) > 0 {
		opts = append(opts, fidelity.WithObjectives(r.cfg.Objectives...))
	}
	return fidelity.NewEvaluator(opts...)
}

// precompute builds the distance matrix and ranking of every metric in
// parallel. Unknown metric names are skipped; their sets fail individually.
func (r *Runner) precompute(metrics []string) (map[string]fidelity.Reference, error) {
	var mu sync.Mutex
	refs := make(map[string]fidelity.Reference, len(metrics))

	var g errgroup.Group
	for _, name := range metrics {
		metric, err := distance.ParseMetric(name)
		if err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("skipping unknown metric")
			continue
		}
		g.Go(func() error {
			start := time.Now()
			dist, err := distance.Matrix(metric, r.data)
			if err != nil {
				return fmt.Errorf("metric %s: %w", name, err)
			}
			ref, err := fidelity.NewReference(dist)
			if err != nil {
				return fmt.Errorf("metric %s: %w", name, err)
			}

			mu.Lock()
			refs[name] = ref
			mu.Unlock()

			log.Debug().
				Str("metric", name).
				Int("points", ref.N()).
				Dur("elapsed", time.Since(start)).
				Msg("reference precomputed")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}

func metricsOf(sets []paramset.ParameterSet) []string {
	seen := map[string]bool{}
	for _, ps := range sets {
		if m, err := ps.Hyperparameters.Text(paramset.MetricKey, ""); err == nil && m != "" {
			seen[m] = true
		}
	}
	return slices.Sorted(maps.Keys(seen))
}
