package fidelity

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/drsweep/internal/distance"
)

// Reference is the precomputed view of the original data that every
// embedding of the same dataset and metric is compared against.
type Reference struct {
	Distances mat.Symmetric
	Ranking   *RankMatrix
}

// N is the number of reference points.
func (r Reference) N() int {
	if r.Ranking == nil {
		return 0
	}
	return r.Ranking.N()
}

func NewReference(distances mat.Symmetric) (Reference, error) {
	ranking, err := NeighborhoodRanking(distances)
	if err != nil {
		return Reference{}, err
	}
	return Reference{Distances: distances, Ranking: ranking}, nil
}

type Evaluator struct {
	Interval   KInterval
	Objectives []string
	Geodesic   bool
}

type EvaluatorOption func(*Evaluator)

func WithInterval(iv KInterval) EvaluatorOption {
	return func(e *Evaluator) {
		e.Interval = iv
	}
}

func WithObjectives(objectives ...string) EvaluatorOption {
	return func(e *Evaluator) {
		e.Objectives = slices.Clone(objectives)
	}
}

// WithGeodesicStress scores stress against shortest-path distances over the
// embedding's kNN graph instead of its Euclidean distances.
func WithGeodesicStress(enabled bool) EvaluatorOption {
	return func(e *Evaluator) {
		e.Geodesic = enabled
	}
}

func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		Interval:   DefaultKInterval(),
		Objectives: DefaultObjectives(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate rejects unknown objectives and intervals that do not fit n points.
func (e *Evaluator) Validate(n int) error {
	if len(e.Objectives) == 0 {
		return fmt.Errorf("no objectives configured")
	}
	for _, name := range e.Objectives {
		if !slices.Contains(DefaultObjectives(), name) {
			return fmt.Errorf("unknown objective %q", name)
		}
	}
	return e.Interval.Validate(n)
}

func (e *Evaluator) wants(names ...string) bool {
	for _, name := range names {
		if slices.Contains(e.Objectives, name) {
			return true
		}
	}
	return false
}

// Evaluate scores one embedding against the reference. The coordinates are
// ranked by Euclidean distance; runtime is left to the caller.
func (e *Evaluator) Evaluate(ref Reference, coords mat.Matrix) (map[string]float64, error) {
	if ref.Ranking == nil || ref.Distances == nil {
		return nil, fmt.Errorf("%w: empty reference", ErrDegenerateInput)
	}
	rows, _ := coords.Dims()
	if rows != ref.N() {
		return nil, fmt.Errorf("%w: %d reference points vs %d embedded points", ErrShapeMismatch, ref.N(), rows)
	}

	lowDist, err := distance.Matrix(distance.Euclidean, coords)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateInput, err)
	}

	scores := make(map[string]float64, len(e.Objectives))

	if e.wants(ObjectiveRNX, ObjectiveBNX, ObjectiveMRRE, ObjectiveMRRETrust, ObjectiveMRRECont) {
		lowRanks, err := NeighborhoodRanking(lowDist)
		if err != nil {
			return nil, err
		}
		q, err := NewCorankingMatrix(ref.Ranking, lowRanks)
		if err != nil {
			return nil, err
		}
		if e.wants(ObjectiveRNX) {
			if scores[ObjectiveRNX], err = q.RNX(e.Interval); err != nil {
				return nil, fmt.Errorf("r_nx: %w", err)
			}
		}
		if e.wants(ObjectiveBNX) {
			if scores[ObjectiveBNX], err = q.BNX(e.Interval); err != nil {
				return nil, fmt.Errorf("b_nx: %w", err)
			}
		}
		if e.wants(ObjectiveMRRE, ObjectiveMRRETrust, ObjectiveMRRECont) {
			m, err := q.MRREDirections(e.Interval)
			if err != nil {
				return nil, fmt.Errorf("mrre: %w", err)
			}
			if e.wants(ObjectiveMRRE) {
				scores[ObjectiveMRRE] = m.Combined()
			}
			if e.wants(ObjectiveMRRETrust) {
				scores[ObjectiveMRRETrust] = m.Trustworthiness
			}
			if e.wants(ObjectiveMRRECont) {
				scores[ObjectiveMRRECont] = m.Continuity
			}
		}
	}

	if e.wants(ObjectiveStress) {
		stressLow := mat.Symmetric(lowDist)
		if e.Geodesic {
			geo, _, err := GeodesicDistances(coords)
			if err != nil {
				return nil, fmt.Errorf("geodesic stress: %w", err)
			}
			stressLow = geo
		}
		if scores[ObjectiveStress], err = KruskalStress(ref.Distances, stressLow); err != nil {
			return nil, fmt.Errorf("stress: %w", err)
		}
	}
	if e.wants(ObjectiveResidualVariance) {
		if scores[ObjectiveResidualVariance], err = ResidualVariance(ref.Distances, lowDist); err != nil {
			return nil, fmt.Errorf("residual variance: %w", err)
		}
	}

	return scores, nil
}
