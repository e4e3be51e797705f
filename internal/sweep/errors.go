package sweep

import "errors"

var (
	// ErrEmbeddingFailure wraps any error or panic raised by the embedding
	// collaborator.
	ErrEmbeddingFailure = errors.New("embedding failed")

	// ErrStorageWrite aborts the sweep: a batch could not be appended.
	ErrStorageWrite = errors.New("storage write failed")

	// ErrMissingMetric marks a parameter set whose metric has no precomputed
	// distances.
	ErrMissingMetric = errors.New("no precomputed distances for metric")

	ErrInvalidConfig = errors.New("invalid sweep configuration")
)
