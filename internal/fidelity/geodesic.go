package fidelity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/drsweep/internal/distance"
)

// GeodesicDistances approximates geodesic distances between embedded points
// by shortest paths over a symmetric k-nearest-neighbour graph. k starts at 2
// and grows until the graph is connected; the chosen k is returned with the
// distances.
func GeodesicDistances(coords mat.Matrix) (*mat.SymDense, int, error) {
	euclid, err := distance.Matrix(distance.Euclidean, coords)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDegenerateInput, err)
	}
	ranks, err := NeighborhoodRanking(euclid)
	if err != nil {
		return nil, 0, err
	}

	n := ranks.N()
	byRank := make([][]int, n)
	for i := range n {
		byRank[i] = make([]int, n-1)
		for j := range n {
			if j != i {
				byRank[i][ranks.At(i, j)-1] = j
			}
		}
	}

	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for i := range n {
		g.AddNode(simple.Node(i))
	}
	addRank := func(k int) {
		for i := range n {
			j := byRank[i][k-1]
			g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(i), simple.Node(j), euclid.At(i, j)))
		}
	}

	k := 0
	for k < n-1 {
		k++
		addRank(k)
		if k >= 2 || k == n-1 {
			if len(topo.ConnectedComponents(g)) == 1 {
				break
			}
		}
	}

	shortest := path.DijkstraAllPaths(g)
	geo := mat.NewSymDense(n, nil)
	for i := range n {
		for j := i + 1; j < n; j++ {
			geo.SetSym(i, j, shortest.Weight(int64(i), int64(j)))
		}
	}
	return geo, k, nil
}
