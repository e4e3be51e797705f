package fidelity

import "errors"

var (
	// ErrShapeMismatch reports inputs describing different numbers of points.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrDegenerateInput reports inputs too small or too uniform for a
	// criterion to be defined.
	ErrDegenerateInput = errors.New("degenerate input")
)
