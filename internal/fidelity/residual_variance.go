package fidelity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ResidualVariance is 1 - r^2, where r is the Pearson correlation between the
// pairwise distances in both spaces. 0 means the embedding distances are a
// linear function of the original ones.
func ResidualVariance(high, low mat.Symmetric) (float64, error) {
	n := high.SymmetricDim()
	if low.SymmetricDim() != n {
		return 0, fmt.Errorf("%w: %d high-dimensional points vs %d low-dimensional points", ErrShapeMismatch, n, low.SymmetricDim())
	}
	if n < 3 {
		return 0, fmt.Errorf("%w: residual variance needs at least 3 points, got %d", ErrDegenerateInput, n)
	}

	hi := upperTriangle(high)
	lo := upperTriangle(low)
	if stat.Variance(hi, nil) == 0 || stat.Variance(lo, nil) == 0 {
		return 0, fmt.Errorf("%w: constant pairwise distances", ErrDegenerateInput)
	}

	r := stat.Correlation(hi, lo, nil)
	if math.IsNaN(r) {
		return 0, fmt.Errorf("%w: correlation undefined", ErrDegenerateInput)
	}
	return 1 - r*r, nil
}
