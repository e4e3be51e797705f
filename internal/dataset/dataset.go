// Package dataset loads and generates the point sets a sweep embeds.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

const (
	SwissRoll = "swiss_roll"
	SCurve    = "s_curve"
)

var ErrEmptyDataset = errors.New("empty dataset")

// Spec says where a dataset comes from. A non-empty Path loads a CSV file;
// otherwise Name selects a synthetic generator.
type Spec struct {
	Name    string
	Path    string
	Points  int
	Noise   float64
	Seed    uint64
	Scaling string
}

// Load builds the dataset and applies the configured scaling.
func Load(spec Spec) (*mat.Dense, error) {
	var (
		data *mat.Dense
		err  error
	)
	switch {
	case spec.Path != "":
		data, err = LoadCSV(spec.Path)
	case strings.EqualFold(spec.Name, SwissRoll):
		data, err = GenerateSwissRoll(spec.Points, spec.Noise, spec.Seed)
	case strings.EqualFold(spec.Name, SCurve):
		data, err = GenerateSCurve(spec.Points, spec.Noise, spec.Seed)
	default:
		return nil, fmt.Errorf("unknown dataset %q and no path given", spec.Name)
	}
	if err != nil {
		return nil, err
	}

	data, err = Scale(spec.Scaling, data)
	if err != nil {
		return nil, err
	}
	rows, cols := data.Dims()
	log.Debug().Str("dataset", spec.Name).Int("rows", rows).Int("cols", cols).Str("scaling", spec.Scaling).Msg("dataset loaded")
	return data, nil
}

// GenerateSwissRoll samples n points of the swiss roll manifold in 3D.
func GenerateSwissRoll(n int, noise float64, seed uint64) (*mat.Dense, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d points", ErrEmptyDataset, n)
	}
	rng := rand.New(rand.NewPCG(seed, seed+1))
	data := mat.NewDense(n, 3, nil)
	for i := range n {
		t := 1.5 * math.Pi * (1 + 2*rng.Float64())
		data.Set(i, 0, t*math.Cos(t)+noise*rng.NormFloat64())
		data.Set(i, 1, 21*rng.Float64()+noise*rng.NormFloat64())
		data.Set(i, 2, t*math.Sin(t)+noise*rng.NormFloat64())
	}
	return data, nil
}

// GenerateSCurve samples n points of the S-shaped surface in 3D.
func GenerateSCurve(n int, noise float64, seed uint64) (*mat.Dense, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d points", ErrEmptyDataset, n)
	}
	rng := rand.New(rand.NewPCG(seed, seed+1))
	data := mat.NewDense(n, 3, nil)
	for i := range n {
		t := 3 * math.Pi * (rng.Float64() - 0.5)
		data.Set(i, 0, math.Sin(t)+noise*rng.NormFloat64())
		data.Set(i, 1, 2*rng.Float64()+noise*rng.NormFloat64())
		data.Set(i, 2, math.Copysign(1, t)*(math.Cos(t)-1)+noise*rng.NormFloat64())
	}
	return data, nil
}
