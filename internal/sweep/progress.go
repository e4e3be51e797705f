package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// ProgressEvent describes the sweep after a persisted batch.
type ProgressEvent struct {
	RunID     string    `json:"run_id"`
	Dataset   string    `json:"dataset"`
	Kernel    string    `json:"kernel"`
	Expected  int       `json:"expected"`
	Persisted int       `json:"persisted"`
	Failed    int       `json:"failed"`
	Batch     int       `json:"batch"`
	Final     bool      `json:"final"`
	At        time.Time `json:"at"`
}

// Progress receives an event for every persisted batch.
type Progress interface {
	Checkpoint(ctx context.Context, ev ProgressEvent) error
}

// KV is the slice of a Redis client that RedisProgress needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	RPush(ctx context.Context, key string, values ...string) error
	LLen(ctx context.Context, key string) (int64, error)
}

// RedisProgress keeps the latest event of each run under
// "<prefix>:progress:<run_id>" and appends every event to
// "<prefix>:events:<run_id>".
type RedisProgress struct {
	kv     KV
	prefix string
	ttl    time.Duration
}

func NewRedisProgress(kv KV, prefix string, ttl time.Duration) *RedisProgress {
	if prefix == "" {
		prefix = "drsweep"
	}
	return &RedisProgress{kv: kv, prefix: prefix, ttl: ttl}
}

func (p *RedisProgress) LatestKey(runID string) string {
	return fmt.Sprintf("%s:progress:%s", p.prefix, runID)
}

func (p *RedisProgress) EventsKey(runID string) string {
	return fmt.Sprintf("%s:events:%s", p.prefix, runID)
}

func (p *RedisProgress) Checkpoint(ctx context.Context, ev ProgressEvent) error {
	payload, err := sonic.MarshalString(ev)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := p.kv.Set(ctx, p.LatestKey(ev.RunID), payload, p.ttl); err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	if err := p.kv.RPush(ctx, p.EventsKey(ev.RunID), payload); err != nil {
		return fmt.Errorf("push progress event: %w", err)
	}
	return nil
}

// Latest returns the last event published for runID and how many events the
// run published. ok is false when nothing was published.
func (p *RedisProgress) Latest(ctx context.Context, runID string) (ev ProgressEvent, events int64, ok bool, err error) {
	payload, err := p.kv.Get(ctx, p.LatestKey(runID))
	if err != nil {
		return ev, 0, false, fmt.Errorf("get progress: %w", err)
	}
	if payload == "" {
		return ev, 0, false, nil
	}
	if err := sonic.UnmarshalString(payload, &ev); err != nil {
		return ev, 0, false, fmt.Errorf("decode progress: %w", err)
	}
	events, err = p.kv.LLen(ctx, p.EventsKey(runID))
	if err != nil {
		return ev, 0, false, fmt.Errorf("count progress events: %w", err)
	}
	return ev, events, true, nil
}
