package fidelity

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// KruskalStress computes Kruskal's non-metric stress between high- and
// low-dimensional distances over every unordered pair of points: the low
// distances are ordered by their high-dimensional counterpart, fitted with a
// monotone regression, and
//
//	stress = sqrt( sum (fit - low)^2 / sum low^2 )
//
// A zero denominator yields ErrDegenerateInput instead of NaN.
func KruskalStress(high, low mat.Symmetric) (float64, error) {
	n := high.SymmetricDim()
	if low.SymmetricDim() != n {
		return 0, fmt.Errorf("%w: %d high-dimensional points vs %d low-dimensional points", ErrShapeMismatch, n, low.SymmetricDim())
	}
	if n < 2 {
		return 0, fmt.Errorf("%w: stress needs at least 2 points, got %d", ErrDegenerateInput, n)
	}

	hi := upperTriangle(high)
	lo := upperTriangle(low)

	order := make([]int, len(hi))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(hi[a], hi[b])
	})

	sorted := make([]float64, len(lo))
	for pos, idx := range order {
		sorted[pos] = lo[idx]
	}

	denom := floats.Dot(sorted, sorted)
	if denom == 0 || math.IsNaN(denom) {
		return 0, fmt.Errorf("%w: embedded distances are all zero", ErrDegenerateInput)
	}

	fit := IsotonicRegression(sorted)
	return floats.Distance(fit, sorted, 2) / math.Sqrt(denom), nil
}

// upperTriangle flattens the strict upper triangle row by row.
func upperTriangle(m mat.Symmetric) []float64 {
	n := m.SymmetricDim()
	out := make([]float64, 0, n*(n-1)/2)
	for i := range n {
		for j := i + 1; j < n; j++ {
			out = append(out, m.At(i, j))
		}
	}
	return out
}
