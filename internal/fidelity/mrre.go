package fidelity

import "math"

// MRREResult carries the two directions of the mean relative rank error.
//
// Trustworthiness looks at the K nearest neighbours in the embedding and
// weights each rank error by the inverse of the original rank. Continuity
// looks at the K nearest neighbours in the original space and weights by the
// inverse of the embedded rank.
type MRREResult struct {
	Trustworthiness float64 `json:"trustworthiness"`
	Continuity      float64 `json:"continuity"`
}

// Combined is the mean of both directions.
func (r MRREResult) Combined() float64 {
	return (r.Trustworthiness + r.Continuity) / 2
}

// MRRE returns the combined mean relative rank error over the interval, in
// [0, 1] with 0 for perfect rank preservation.
func (c *CorankingMatrix) MRRE(iv KInterval) (float64, error) {
	r, err := c.MRREDirections(iv)
	if err != nil {
		return 0, err
	}
	return r.Combined(), nil
}

// MRREDirections returns both MRRE directions, each averaged over the
// interval and normalised by the worst case
// H_K = N * sum_{k=1..K} |N - 2k + 1| / k.
func (c *CorankingMatrix) MRREDirections(iv KInterval) (MRREResult, error) {
	if err := iv.Validate(c.n); err != nil {
		return MRREResult{}, err
	}

	size := c.n - 1
	raw := c.q.RawMatrix()

	// colTerm[l] = sum_k Q[k,l] |k-l| / k, rowTerm[k] = sum_l Q[k,l] |k-l| / l
	colTerm := make([]float64, iv.Max)
	rowTerm := make([]float64, iv.Max)
	for k := 1; k <= size; k++ {
		row := raw.Data[(k-1)*raw.Stride : (k-1)*raw.Stride+size]
		for l := 1; l <= size; l++ {
			v := row[l-1]
			if v == 0 || k == l {
				continue
			}
			diff := math.Abs(float64(k - l))
			if l <= iv.Max {
				colTerm[l-1] += v * diff / float64(k)
			}
			if k <= iv.Max {
				rowTerm[k-1] += v * diff / float64(l)
			}
		}
	}

	n := float64(c.n)
	var trust, cont, h float64
	var res MRREResult
	for k := 1; k <= iv.Max; k++ {
		trust += colTerm[k-1]
		cont += rowTerm[k-1]
		h += math.Abs(n-2*float64(k)+1) / float64(k)
		if k < iv.Min {
			continue
		}
		norm := n * h
		res.Trustworthiness += trust / norm
		res.Continuity += cont / norm
	}

	count := float64(iv.Max - iv.Min + 1)
	res.Trustworthiness /= count
	res.Continuity /= count
	return res, nil
}
