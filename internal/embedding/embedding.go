// Package embedding provides the kernels that map a distance matrix to
// low-dimensional coordinates for one set of hyperparameters.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/drsweep/internal/paramset"
)

const (
	KernelMDS    = "mds"
	KernelSMACOF = "smacof"
	KernelRemote = "remote"

	DefaultComponents = 2
)

var (
	ErrUnknownKernel = errors.New("unknown embedding kernel")
	ErrInvalidInput  = errors.New("invalid embedding input")
)

// Embedder maps the pairwise distances of N points to an N x n_components
// coordinate matrix. Implementations must be safe for concurrent use.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, hp paramset.Hyperparameters, distances mat.Symmetric) (*mat.Dense, error)
}

// Func adapts a function to the Embedder interface.
type Func func(ctx context.Context, hp paramset.Hyperparameters, distances mat.Symmetric) (*mat.Dense, error)

func (f Func) Name() string { return "func" }

func (f Func) Embed(ctx context.Context, hp paramset.Hyperparameters, distances mat.Symmetric) (*mat.Dense, error) {
	return f(ctx, hp, distances)
}

// Local returns the in-process kernel registered under name.
func Local(name string) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case KernelMDS:
		return MDS{}, nil
	case KernelSMACOF:
		return SMACOF{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
	}
}

// New resolves a kernel name. The remote kernel needs cfg; local kernels
// ignore it.
func New(name string, cfg *RemoteConfig) (Embedder, error) {
	if strings.EqualFold(strings.TrimSpace(name), KernelRemote) {
		if cfg == nil {
			return nil, fmt.Errorf("%w: remote kernel needs a service configuration", ErrUnknownKernel)
		}
		return NewRemote(*cfg)
	}
	return Local(name)
}

// Kernels lists every kernel name New accepts.
func Kernels() []string {
	return []string{KernelMDS, KernelSMACOF, KernelRemote}
}

func components(hp paramset.Hyperparameters, n int) (int, error) {
	p, err := hp.Int("n_components", DefaultComponents)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if p < 1 || p >= n {
		return 0, fmt.Errorf("%w: n_components %d must be in [1, %d)", ErrInvalidInput, p, n)
	}
	return p, nil
}
