package fidelity

// IsotonicRegression returns the least-squares non-decreasing fit of y using
// pool-adjacent-violators with unit weights.
func IsotonicRegression(y []float64) []float64 {
	out := make([]float64, len(y))
	if len(y) == 0 {
		return out
	}

	type block struct {
		mean   float64
		weight float64
	}
	blocks := make([]block, 0, len(y))
	for _, v := range y {
		blocks = append(blocks, block{mean: v, weight: 1})
		for len(blocks) > 1 {
			last := blocks[len(blocks)-1]
			prev := blocks[len(blocks)-2]
			if prev.mean <= last.mean {
				break
			}
			w := prev.weight + last.weight
			blocks[len(blocks)-2] = block{
				mean:   (prev.mean*prev.weight + last.mean*last.weight) / w,
				weight: w,
			}
			blocks = blocks[:len(blocks)-1]
		}
	}

	pos := 0
	for _, b := range blocks {
		for range int(b.weight) {
			out[pos] = b.mean
			pos++
		}
	}
	return out
}
