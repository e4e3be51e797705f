package sweep

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/drsweep/internal/paramset"
	"github.com/tensorplex-labs/drsweep/internal/store"
)

// State is the lifecycle position of one parameter set inside a worker.
type State int

const (
	StatePending State = iota
	StateEmbedding
	StateScoring
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StatePending:   "pending",
	StateEmbedding: "embedding",
	StateScoring:   "scoring",
	StateDone:      "done",
	StateFailed:    "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ResultRecord is a scored embedding, immutable once published.
type ResultRecord struct {
	paramset.ParameterSet
	Coordinates *mat.Dense
	Objectives  map[string]float64
	Runtime     time.Duration
}

func (r ResultRecord) storeRecord() store.Record {
	return store.Record{
		ID:              r.ID,
		Key:             r.Key(),
		Hash:            r.Hash(),
		Hyperparameters: r.Hyperparameters,
		Objectives:      r.Objectives,
		Coordinates:     r.Coordinates,
	}
}

// Failure is a published non-result. State is where processing stopped.
type Failure struct {
	paramset.ParameterSet
	State State
	Err   error
}
