package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/drsweep/internal/paramset"
	"github.com/tensorplex-labs/drsweep/internal/store"
)

// Store is the persistence the sweep needs. Implementations must write each
// batch atomically.
type Store interface {
	AppendBatch(ctx context.Context, runID string, records []store.Record) error
	ExistingKeys(ctx context.Context) (paramset.KeySet, error)
	NextID(ctx context.Context) (int64, error)
}

type CoordinatorStats struct {
	CheckpointDrains int
	FinalDrains      int
	Persisted        int
	PersistedIDs     []int64
	// Unpersisted holds the ids of the batch whose append failed.
	Unpersisted []int64
}

// Coordinator is the only writer of the store. It appends full checkpoint
// batches as they fill up and flushes the remainder once every expected set
// has been published.
type Coordinator struct {
	store      Store
	buffer     *ResultBuffer
	expected   int
	checkpoint int
	runID      string
	progress   Progress
	meta       ProgressEvent
}

func NewCoordinator(st Store, buffer *ResultBuffer, expected, checkpoint int, runID string) *Coordinator {
	if checkpoint < 1 {
		checkpoint = 1
	}
	return &Coordinator{
		store:      st,
		buffer:     buffer,
		expected:   expected,
		checkpoint: checkpoint,
		runID:      runID,
		meta:       ProgressEvent{RunID: runID, Expected: expected},
	}
}

// WithProgress reports every persisted batch; publishing errors are logged
// and otherwise ignored.
func (c *Coordinator) WithProgress(p Progress, dataset, kernel string) *Coordinator {
	c.progress = p
	c.meta.Dataset = dataset
	c.meta.Kernel = kernel
	return c
}

// Run blocks until every expected set is settled and persisted, the context
// is cancelled, or an append fails. On cancellation the records already
// buffered are still flushed.
func (c *Coordinator) Run(ctx context.Context) (CoordinatorStats, error) {
	var stats CoordinatorStats
	logger := log.With().Str("run_id", c.runID).Logger()

	for {
		for c.buffer.Pending() >= c.checkpoint {
			if err := c.persist(ctx, c.buffer.Drain(c.checkpoint), false, &stats); err != nil {
				return stats, err
			}
			stats.CheckpointDrains++
		}

		if c.buffer.Published() >= c.expected {
			if c.buffer.Pending() > 0 {
				if err := c.persist(ctx, c.buffer.Drain(0), true, &stats); err != nil {
					return stats, err
				}
				stats.FinalDrains++
			}
			logger.Info().
				Int("persisted", stats.Persisted).
				Int("checkpoint_drains", stats.CheckpointDrains).
				Int("final_drains", stats.FinalDrains).
				Msg("all parameter sets settled")
			return stats, nil
		}

		select {
		case <-c.buffer.Notify():
		case <-ctx.Done():
			if c.buffer.Pending() > 0 {
				flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
				err := c.persist(flushCtx, c.buffer.Drain(0), true, &stats)
				cancel()
				if err != nil {
					return stats, err
				}
				stats.FinalDrains++
			}
			logger.Warn().Int("persisted", stats.Persisted).Msg("coordinator interrupted")
			return stats, ctx.Err()
		}
	}
}

func (c *Coordinator) persist(ctx context.Context, batch []ResultRecord, final bool, stats *CoordinatorStats) error {
	if len(batch) == 0 {
		return nil
	}

	records := make([]store.Record, 0, len(batch))
	ids := make([]int64, 0, len(batch))
	for _, r := range batch {
		records = append(records, r.storeRecord())
		ids = append(ids, r.ID)
	}

	if err := c.store.AppendBatch(ctx, c.runID, records); err != nil {
		stats.Unpersisted = append(stats.Unpersisted, ids...)
		log.Error().Err(err).Str("run_id", c.runID).Int("batch", len(batch)).Msg("append failed")
		return fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}

	stats.Persisted += len(batch)
	stats.PersistedIDs = append(stats.PersistedIDs, ids...)
	log.Debug().
		Str("run_id", c.runID).
		Int("batch", len(batch)).
		Bool("final", final).
		Int("persisted", stats.Persisted).
		Int("expected", c.expected).
		Msg("batch persisted")

	if c.progress != nil {
		ev := c.meta
		ev.Batch = len(batch)
		ev.Persisted = stats.Persisted
		ev.Failed = len(c.buffer.Failures())
		ev.Final = final
		ev.At = time.Now().UTC()
		if err := c.progress.Checkpoint(ctx, ev); err != nil {
			log.Warn().Err(err).Str("run_id", c.runID).Msg("progress publish failed")
		}
	}
	return nil
}
