package embedding

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/drsweep/internal/paramset"
)

const (
	defaultSMACOFIter = 300
	defaultSMACOFEps  = 1e-3
)

// SMACOF is metric MDS by stress majorization (Guttman transform).
//
// Hyperparameters: n_components, n_iter, eps, seed and init, which is either
// "random" (seeded uniform layout, the default) or "classical" (start from
// the Torgerson solution).
type SMACOF struct{}

func (SMACOF) Name() string { return KernelSMACOF }

func (SMACOF) Embed(ctx context.Context, hp paramset.Hyperparameters, distances mat.Symmetric) (*mat.Dense, error) {
	n := distances.SymmetricDim()
	p, err := components(hp, n)
	if err != nil {
		return nil, err
	}
	nIter, err := hp.Int("n_iter", defaultSMACOFIter)
	if err != nil || nIter < 1 {
		return nil, fmt.Errorf("%w: n_iter: %v", ErrInvalidInput, hp["n_iter"])
	}
	eps, err := hp.Float("eps", defaultSMACOFEps)
	if err != nil || eps < 0 {
		return nil, fmt.Errorf("%w: eps: %v", ErrInvalidInput, hp["eps"])
	}
	seed, err := hp.Int("seed", 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	start, err := hp.Text("init", "random")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var x *mat.Dense
	switch start {
	case "random":
		rng := rand.New(rand.NewPCG(uint64(seed), 0x5eed))
		x = mat.NewDense(n, p, nil)
		raw := x.RawMatrix()
		for i := range raw.Data {
			raw.Data[i] = rng.Float64()*2 - 1
		}
	case "classical":
		if x, err = (MDS{}).Embed(ctx, hp, distances); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: init %q", ErrInvalidInput, start)
	}

	b := mat.NewDense(n, n, nil)
	next := mat.NewDense(n, p, nil)
	prev := math.Inf(1)
	for it := range nIter {
		if it%16 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		stress := guttman(b, x, distances)
		next.Mul(b, x)
		next.Scale(1/float64(n), next)
		x, next = next, x

		if !math.IsInf(prev, 1) && prev-stress <= eps*prev {
			break
		}
		prev = stress
	}

	for _, v := range x.RawMatrix().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: layout diverged", ErrInvalidInput)
		}
	}
	return x, nil
}

// guttman fills b with the Guttman transform matrix B(x) and returns the raw
// stress of x against the target distances.
func guttman(b, x *mat.Dense, target mat.Symmetric) float64 {
	n, _ := x.Dims()
	var stress float64
	for i := range n {
		b.Set(i, i, 0)
	}
	for i := range n {
		xi := x.RawRowView(i)
		for j := i + 1; j < n; j++ {
			dij := floats.Distance(xi, x.RawRowView(j), 2)
			delta := target.At(i, j)
			stress += (dij - delta) * (dij - delta)

			var bij float64
			if dij > 0 {
				bij = -delta / dij
			}
			b.Set(i, j, bij)
			b.Set(j, i, bij)
			b.Set(i, i, b.At(i, i)-bij)
			b.Set(j, j, b.At(j, j)-bij)
		}
	}
	return stress
}
