package embedding

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/drsweep/internal/paramset"
)

// EmbedPath is the service route the remote kernel posts to.
const EmbedPath = "/v1/embed"

// StdResponse is the envelope every embedding service response uses.
type StdResponse[T any] struct {
	Body  T       `json:"body"`
	Error *string `json:"error,omitempty"`
}

func NewResponse[T any](body T, err error) StdResponse[T] {
	if err != nil {
		msg := err.Error()
		return StdResponse[T]{Body: body, Error: &msg}
	}
	return StdResponse[T]{Body: body}
}

// EmbedRequest carries a full row-major N x N distance matrix.
type EmbedRequest struct {
	Kernel          string                   `json:"kernel"`
	Hyperparameters paramset.Hyperparameters `json:"hyperparameters"`
	Points          int                      `json:"points"`
	Distances       []float64                `json:"distances"`
}

// Coordinates is a row-major dense matrix on the wire.
type Coordinates struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

func NewEmbedRequest(kernel string, hp paramset.Hyperparameters, distances mat.Symmetric) EmbedRequest {
	n := distances.SymmetricDim()
	flat := make([]float64, 0, n*n)
	for i := range n {
		for j := range n {
			flat = append(flat, distances.At(i, j))
		}
	}
	return EmbedRequest{Kernel: kernel, Hyperparameters: hp, Points: n, Distances: flat}
}

// Matrix rebuilds the distance matrix from the upper triangle.
func (r EmbedRequest) Matrix() (*mat.SymDense, error) {
	if r.Points < 2 || len(r.Distances) != r.Points*r.Points {
		return nil, fmt.Errorf("%w: %d distances for %d points", ErrInvalidInput, len(r.Distances), r.Points)
	}
	return mat.NewSymDense(r.Points, r.Distances), nil
}

func NewCoordinates(m *mat.Dense) Coordinates {
	rows, cols := m.Dims()
	data := make([]float64, 0, rows*cols)
	for i := range rows {
		data = append(data, m.RawRowView(i)...)
	}
	return Coordinates{Rows: rows, Cols: cols, Data: data}
}

func (c Coordinates) Matrix() (*mat.Dense, error) {
	if c.Rows < 1 || c.Cols < 1 || len(c.Data) != c.Rows*c.Cols {
		return nil, fmt.Errorf("%w: %d values for %dx%d coordinates", ErrInvalidInput, len(c.Data), c.Rows, c.Cols)
	}
	return mat.NewDense(c.Rows, c.Cols, c.Data), nil
}
