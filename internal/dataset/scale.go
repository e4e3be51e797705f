package dataset

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	ScalingNone     = "none"
	ScalingMinMax   = "minmax"
	ScalingStandard = "standard"
)

// Scale applies the named feature scaling column by column.
func Scale(name string, data *mat.Dense) (*mat.Dense, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ScalingNone:
		return data, nil
	case ScalingMinMax:
		return MinMaxScale(data), nil
	case ScalingStandard:
		return Standardize(data), nil
	default:
		return nil, fmt.Errorf("unknown scaling %q", name)
	}
}

func minMax(values []float64) []float64 {
	result := make([]float64, len(values))
	copy(result, values)

	lo := floats.Min(result)
	hi := floats.Max(result)

	if hi != lo {
		floats.AddConst(-lo, result)
		floats.Scale(1.0/(hi-lo), result)
	} else {
		floats.Scale(0, result)
	}

	return result
}

// MinMaxScale maps every feature to [0, 1]. Constant features become zero.
func MinMaxScale(data *mat.Dense) *mat.Dense {
	rows, cols := data.Dims()
	scaled := mat.NewDense(rows, cols, nil)
	for j := range cols {
		scaled.SetCol(j, minMax(mat.Col(nil, j, data)))
	}
	return scaled
}

// Standardize centres every feature and divides by its population standard
// deviation.
func Standardize(data *mat.Dense) *mat.Dense {
	rows, cols := data.Dims()
	scaled := mat.NewDense(rows, cols, nil)
	for j := range cols {
		col := mat.Col(nil, j, data)
		mean, std := stat.PopMeanStdDev(col, nil)
		floats.AddConst(-mean, col)
		if std > 0 && !math.IsNaN(std) {
			floats.Scale(1/std, col)
		}
		scaled.SetCol(j, col)
	}
	return scaled
}
