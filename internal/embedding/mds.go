package embedding

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/mds"

	"github.com/tensorplex-labs/drsweep/internal/paramset"
)

// MDS is classical (Torgerson) multidimensional scaling. Dimensions beyond
// the number of positive eigenvalues are left at zero.
type MDS struct{}

func (MDS) Name() string { return KernelMDS }

func (MDS) Embed(ctx context.Context, hp paramset.Hyperparameters, distances mat.Symmetric) (*mat.Dense, error) {
	n := distances.SymmetricDim()
	p, err := components(hp, n)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var full mat.Dense
	k, _ := mds.TorgersonScaling(&full, nil, distances)
	if k == 0 {
		return nil, fmt.Errorf("%w: no positive eigenvalues", ErrInvalidInput)
	}

	out := mat.NewDense(n, p, nil)
	cols := min(k, p)
	out.Slice(0, n, 0, cols).(*mat.Dense).Copy(full.Slice(0, n, 0, cols))
	return out, nil
}
