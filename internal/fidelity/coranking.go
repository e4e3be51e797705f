package fidelity

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/drsweep/internal/distance"
)

// CorankingMatrix is the joint histogram of high- and low-dimensional ranks.
// Cell (k, l) counts the ordered pairs (i, j), i != j, whose rank is k in the
// original space and l in the embedding, so the total mass is N*(N-1).
type CorankingMatrix struct {
	n int
	q *mat.Dense
}

// NewCorankingMatrix fuses two rankings over the same point set.
func NewCorankingMatrix(high, low *RankMatrix) (*CorankingMatrix, error) {
	if high == nil || low == nil {
		return nil, fmt.Errorf("%w: missing ranking", ErrDegenerateInput)
	}
	if high.N() != low.N() {
		return nil, fmt.Errorf("%w: %d high-dimensional points vs %d low-dimensional points", ErrShapeMismatch, high.N(), low.N())
	}

	n := high.N()
	q := mat.NewDense(n-1, n-1, nil)
	raw := q.RawMatrix()
	for i := range n {
		for j := range n {
			if i == j {
				continue
			}
			k := high.At(i, j) - 1
			l := low.At(i, j) - 1
			raw.Data[k*raw.Stride+l]++
		}
	}

	return &CorankingMatrix{n: n, q: q}, nil
}

// CorankingFromDistances ranks both distance matrices and fuses them.
func CorankingFromDistances(high, low mat.Symmetric) (*CorankingMatrix, error) {
	if high.SymmetricDim() != low.SymmetricDim() {
		return nil, fmt.Errorf("%w: %d high-dimensional points vs %d low-dimensional points", ErrShapeMismatch, high.SymmetricDim(), low.SymmetricDim())
	}
	highRanks, err := NeighborhoodRanking(high)
	if err != nil {
		return nil, err
	}
	lowRanks, err := NeighborhoodRanking(low)
	if err != nil {
		return nil, err
	}
	return NewCorankingMatrix(highRanks, lowRanks)
}

// CorankingFromEmbedding reuses a precomputed high-dimensional ranking and
// ranks the embedding rows by Euclidean distance.
func CorankingFromEmbedding(high *RankMatrix, coords mat.Matrix) (*CorankingMatrix, error) {
	if high == nil {
		return nil, fmt.Errorf("%w: missing high-dimensional ranking", ErrDegenerateInput)
	}
	rows, _ := coords.Dims()
	if rows != high.N() {
		return nil, fmt.Errorf("%w: %d high-dimensional points vs %d embedded points", ErrShapeMismatch, high.N(), rows)
	}
	lowDist, err := distance.Matrix(distance.Euclidean, coords)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateInput, err)
	}
	lowRanks, err := NeighborhoodRanking(lowDist)
	if err != nil {
		return nil, err
	}
	return NewCorankingMatrix(high, lowRanks)
}

// N is the number of points the matrix was built from.
func (c *CorankingMatrix) N() int { return c.n }

// At returns the count for high rank k and low rank l, both 1-based.
func (c *CorankingMatrix) At(k, l int) float64 { return c.q.At(k-1, l-1) }

// Sum returns the total mass, N*(N-1).
func (c *CorankingMatrix) Sum() float64 { return mat.Sum(c.q) }

// Dense exposes the underlying (N-1)x(N-1) counts. Callers must not modify it.
func (c *CorankingMatrix) Dense() mat.Matrix { return c.q }
