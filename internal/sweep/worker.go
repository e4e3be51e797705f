package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/drsweep/internal/embedding"
	"github.com/tensorplex-labs/drsweep/internal/fidelity"
	"github.com/tensorplex-labs/drsweep/internal/paramset"
)

// Worker embeds and scores its shard of parameter sets one at a time,
// publishing each outcome to the shared buffer.
type Worker struct {
	ID int

	embedder   embedding.Embedder
	evaluator  *fidelity.Evaluator
	references map[string]fidelity.Reference
	buffer     *ResultBuffer
}

// NewWorker wires a worker. references maps metric names to the precomputed
// view of the original data and is only read.
func NewWorker(id int, embedder embedding.Embedder, evaluator *fidelity.Evaluator, references map[string]fidelity.Reference, buffer *ResultBuffer) *Worker {
	return &Worker{
		ID:         id,
		embedder:   embedder,
		evaluator:  evaluator,
		references: references,
		buffer:     buffer,
	}
}

// Run processes the shard in order. A failing set is published as a Failure
// and the shard continues; cancellation stops it between sets.
func (w *Worker) Run(ctx context.Context, shard []paramset.ParameterSet) error {
	logger := log.With().Int("worker", w.ID).Logger()
	logger.Debug().Int("shard_size", len(shard)).Msg("worker started")

	done, failed := 0, 0
	for _, ps := range shard {
		if err := ctx.Err(); err != nil {
			logger.Debug().Int("done", done).Int("failed", failed).Msg("worker cancelled")
			return err
		}

		rec, state, err := w.process(ctx, ps)
		if err != nil {
			if ctx.Err() != nil {
				// interrupted mid-set: leave it for a resumed sweep
				return ctx.Err()
			}
			failed++
			logger.Warn().Err(err).Int64("param_id", ps.ID).Str("state", state.String()).Msg("parameter set failed")
			w.buffer.Fail(Failure{ParameterSet: ps, State: state, Err: err})
			continue
		}

		done++
		logger.Trace().
			Int64("param_id", rec.ID).
			Dur("runtime", rec.Runtime).
			Interface("objectives", rec.Objectives).
			Msg("parameter set done")
		w.buffer.Publish(rec)
	}

	logger.Debug().Int("done", done).Int("failed", failed).Msg("worker finished")
	return nil
}

// process returns the record, or the state processing stopped in and why.
func (w *Worker) process(ctx context.Context, ps paramset.ParameterSet) (ResultRecord, State, error) {
	metric, err := ps.Hyperparameters.Text(paramset.MetricKey, "")
	if err != nil {
		return ResultRecord{}, StateEmbedding, fmt.Errorf("%w: %w", ErrMissingMetric, err)
	}
	ref, ok := w.references[metric]
	if !ok {
		return ResultRecord{}, StateEmbedding, fmt.Errorf("%w %q", ErrMissingMetric, metric)
	}

	start := time.Now()
	coords, err := w.embed(ctx, ps.Hyperparameters, ref.Distances)
	runtime := time.Since(start)
	if err != nil {
		return ResultRecord{}, StateEmbedding, err
	}

	scores, err := w.score(ref, coords)
	if err != nil {
		return ResultRecord{}, StateScoring, err
	}
	scores[fidelity.ObjectiveRuntime] = runtime.Seconds()

	return ResultRecord{
		ParameterSet: ps,
		Coordinates:  coords,
		Objectives:   scores,
		Runtime:      runtime,
	}, StateDone, nil
}

func (w *Worker) embed(ctx context.Context, hp paramset.Hyperparameters, distances mat.Symmetric) (coords *mat.Dense, err error) {
	defer func() {
		if r := recover(); r != nil {
			coords, err = nil, fmt.Errorf("%w: panic: %v", ErrEmbeddingFailure, r)
		}
	}()

	coords, err = w.embedder.Embed(ctx, hp, distances)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailure, err)
	}
	if coords == nil {
		return nil, fmt.Errorf("%w: no coordinates returned", ErrEmbeddingFailure)
	}
	return coords, nil
}

func (w *Worker) score(ref fidelity.Reference, coords *mat.Dense) (scores map[string]float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			scores, err = nil, fmt.Errorf("%w: panic while scoring: %v", fidelity.ErrDegenerateInput, r)
		}
	}()
	return w.evaluator.Evaluate(ref, coords)
}
