// Package fidelity measures how well a low-dimensional embedding preserves the
// neighbourhood and distance structure of the original data: rank matrices,
// the coranking matrix and the criteria derived from it, Kruskal stress and
// residual variance.
package fidelity

import (
	"cmp"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// RankMatrix holds, for every point i, the rank of every other point j in the
// ascending-distance ordering seen from i. Ranks run 1..N-1; the diagonal is 0.
type RankMatrix struct {
	n     int
	ranks []int
}

func (r *RankMatrix) N() int { return r.n }

func (r *RankMatrix) At(i, j int) int { return r.ranks[i*r.n+j] }

// NeighborhoodRanking converts a distance matrix into a RankMatrix. Equal
// distances are ordered by ascending point index so the result is a total order.
func NeighborhoodRanking(d mat.Symmetric) (*RankMatrix, error) {
	n := d.SymmetricDim()
	if n < 2 {
		return nil, fmt.Errorf("%w: ranking needs at least 2 points, got %d", ErrDegenerateInput, n)
	}

	ranks := make([]int, n*n)
	order := make([]int, 0, n-1)
	for i := range n {
		order = order[:0]
		for j := range n {
			if j != i {
				order = append(order, j)
			}
		}
		slices.SortFunc(order, func(a, b int) int {
			if c := cmp.Compare(d.At(i, a), d.At(i, b)); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})
		for pos, j := range order {
			ranks[i*n+j] = pos + 1
		}
	}

	return &RankMatrix{n: n, ranks: ranks}, nil
}
