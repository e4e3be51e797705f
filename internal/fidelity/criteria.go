package fidelity

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// KInterval is an inclusive range of neighbourhood sizes over which a
// coranking criterion is averaged.
type KInterval struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Validate checks the interval against a point count: N >= 3 and
// 1 <= Min <= Max <= N-2.
func (iv KInterval) Validate(n int) error {
	if n < 3 {
		return fmt.Errorf("%w: %d points leave no neighbourhoods to compare", ErrDegenerateInput, n)
	}
	if iv.Min < 1 || iv.Max < iv.Min || iv.Max > n-2 {
		return fmt.Errorf("%w: neighbourhood interval [%d, %d] outside [1, %d]", ErrDegenerateInput, iv.Min, iv.Max, n-2)
	}
	return nil
}

func (iv KInterval) String() string {
	return fmt.Sprintf("[%d, %d]", iv.Min, iv.Max)
}

// window summarises the top-left k x k block of the coranking matrix.
type window struct {
	mass       float64 // every cell
	intrusions float64 // below the diagonal: ranked closer in the embedding
	extrusions float64 // above the diagonal: ranked farther in the embedding
}

// windows returns the block summaries for k = 1..maxK, index k-1.
func (c *CorankingMatrix) windows(maxK int) []window {
	out := make([]window, maxK)
	var acc window
	for idx := range maxK {
		for col := range idx {
			v := c.q.At(idx, col)
			acc.intrusions += v
			acc.mass += v
		}
		for row := range idx {
			v := c.q.At(row, idx)
			acc.extrusions += v
			acc.mass += v
		}
		acc.mass += c.q.At(idx, idx)
		out[idx] = acc
	}
	return out
}

// QNXCurve returns Q_NX(k) for every k in the interval: the share of
// k-neighbourhood pairs that are preserved in the embedding.
func (c *CorankingMatrix) QNXCurve(iv KInterval) ([]float64, error) {
	if err := iv.Validate(c.n); err != nil {
		return nil, err
	}
	ws := c.windows(iv.Max)
	curve := make([]float64, 0, iv.Max-iv.Min+1)
	for k := iv.Min; k <= iv.Max; k++ {
		curve = append(curve, ws[k-1].mass/float64(k*c.n))
	}
	return curve, nil
}

// RNXCurve rescales Q_NX so that a random embedding scores 0 and a perfect
// one scores 1: R_NX(k) = ((N-1) Q_NX(k) - k) / (N-1-k).
func (c *CorankingMatrix) RNXCurve(iv KInterval) ([]float64, error) {
	q, err := c.QNXCurve(iv)
	if err != nil {
		return nil, err
	}
	n1 := float64(c.n - 1)
	for i := range q {
		k := float64(iv.Min + i)
		q[i] = (n1*q[i] - k) / (n1 - k)
	}
	return q, nil
}

// BNXCurve returns B_NX(k), intrusions minus extrusions inside the k x k
// block normalised by k*N. Positive values mark an intrusive embedding.
func (c *CorankingMatrix) BNXCurve(iv KInterval) ([]float64, error) {
	if err := iv.Validate(c.n); err != nil {
		return nil, err
	}
	ws := c.windows(iv.Max)
	curve := make([]float64, 0, iv.Max-iv.Min+1)
	for k := iv.Min; k <= iv.Max; k++ {
		w := ws[k-1]
		curve = append(curve, (w.intrusions-w.extrusions)/float64(k*c.n))
	}
	return curve, nil
}

// RNX is the mean of R_NX(k) over the interval.
func (c *CorankingMatrix) RNX(iv KInterval) (float64, error) {
	curve, err := c.RNXCurve(iv)
	if err != nil {
		return 0, err
	}
	return mean(curve), nil
}

// BNX is the mean of B_NX(k) over the interval.
func (c *CorankingMatrix) BNX(iv KInterval) (float64, error) {
	curve, err := c.BNXCurve(iv)
	if err != nil {
		return 0, err
	}
	return mean(curve), nil
}

func mean(v []float64) float64 {
	return floats.Sum(v) / float64(len(v))
}
