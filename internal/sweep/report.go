package sweep

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/bytedance/sonic"
)

// FailedSet is the report entry of a parameter set without a result.
type FailedSet struct {
	ID    int64  `json:"id"`
	Key   string `json:"key"`
	State string `json:"state"`
	Error string `json:"error"`
}

// Report summarises one sweep run.
type Report struct {
	RunID      string    `json:"run_id"`
	Dataset    string    `json:"dataset"`
	Kernel     string    `json:"kernel"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Duration   string    `json:"duration"`

	GridSize   int `json:"grid_size"`
	Expected   int `json:"expected"`
	Resumed    int `json:"resumed"`
	Duplicates int `json:"duplicates"`
	Workers    int `json:"workers"`

	CheckpointDrains int `json:"checkpoint_drains"`
	FinalDrains      int `json:"final_drains"`

	Succeeded   []int64     `json:"succeeded"`
	Failed      []FailedSet `json:"failed"`
	Unpersisted []int64     `json:"unpersisted,omitempty"`
	Error       string      `json:"error,omitempty"`
}

func (r *Report) addFailures(failures []Failure) {
	for _, f := range failures {
		r.Failed = append(r.Failed, FailedSet{
			ID:    f.ID,
			Key:   f.Key(),
			State: f.State.String(),
			Error: f.Err.Error(),
		})
	}
	slices.SortFunc(r.Failed, func(a, b FailedSet) int { return cmp.Compare(a.ID, b.ID) })
}

func (r *Report) finish(err error) {
	r.FinishedAt = time.Now().UTC()
	r.Duration = r.FinishedAt.Sub(r.StartedAt).String()
	slices.Sort(r.Succeeded)
	slices.Sort(r.Unpersisted)
	if err != nil {
		r.Error = err.Error()
	}
}

// WriteFile stores the report as indented JSON.
func (r *Report) WriteFile(path string) error {
	data, err := sonic.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
