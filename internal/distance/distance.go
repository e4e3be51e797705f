// Package distance computes pairwise distance matrices over the rows of a dataset.
package distance

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var ErrEmptyData = errors.New("distance: dataset has no rows")

// Metric identifies a pairwise distance function.
type Metric int

const (
	Euclidean Metric = iota
	SqEuclidean
	SEuclidean
	CityBlock
	Chebyshev
	Cosine
	Correlation
)

var metricNames = map[Metric]string{
	Euclidean:   "euclidean",
	SqEuclidean: "sqeuclidean",
	SEuclidean:  "seuclidean",
	CityBlock:   "cityblock",
	Chebyshev:   "chebyshev",
	Cosine:      "cosine",
	Correlation: "correlation",
}

func (m Metric) String() string {
	if name, ok := metricNames[m]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(m))
}

// ParseMetric resolves a metric by its name, case-insensitively.
func ParseMetric(name string) (Metric, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for m, n := range metricNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("distance: unsupported metric %q", name)
}

// Matrix returns the symmetric matrix of distances between every pair of rows
// in data. The diagonal is zero and all entries are non-negative.
func Matrix(m Metric, data mat.Matrix) (*mat.SymDense, error) {
	n, dims := data.Dims()
	if n == 0 || dims == 0 {
		return nil, ErrEmptyData
	}

	rows := make([][]float64, n)
	for i := range n {
		rows[i] = mat.Row(nil, i, data)
	}

	var fn func(a, b []float64) float64
	switch m {
	case Euclidean:
		fn = func(a, b []float64) float64 { return floats.Distance(a, b, 2) }
	case SqEuclidean:
		fn = func(a, b []float64) float64 {
			d := floats.Distance(a, b, 2)
			return d * d
		}
	case SEuclidean:
		fn = standardizedEuclidean(data)
	case CityBlock:
		fn = func(a, b []float64) float64 { return floats.Distance(a, b, 1) }
	case Chebyshev:
		fn = func(a, b []float64) float64 { return floats.Distance(a, b, math.Inf(1)) }
	case Cosine:
		fn = CosineDistance
	case Correlation:
		for i := range rows {
			rows[i] = centered(rows[i])
		}
		fn = CosineDistance
	default:
		return nil, fmt.Errorf("distance: unsupported metric %v", m)
	}

	out := mat.NewSymDense(n, nil)
	for i := range n {
		for j := i + 1; j < n; j++ {
			d := fn(rows[i], rows[j])
			if d < 0 || math.IsNaN(d) {
				d = 0
			}
			out.SetSym(i, j, d)
		}
	}
	return out, nil
}

// standardizedEuclidean weights every squared coordinate difference by the
// inverse sample variance of its column. Constant columns are ignored.
func standardizedEuclidean(data mat.Matrix) func(a, b []float64) float64 {
	_, dims := data.Dims()
	inv := make([]float64, dims)
	for j := range dims {
		v := stat.Variance(mat.Col(nil, j, data), nil)
		if v > 0 && !math.IsNaN(v) {
			inv[j] = 1 / v
		}
	}
	return func(a, b []float64) float64 {
		var sum float64
		for j := range a {
			diff := a[j] - b[j]
			sum += diff * diff * inv[j]
		}
		return math.Sqrt(sum)
	}
}

func centered(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	floats.AddConst(-stat.Mean(out, nil), out)
	return out
}
