package fidelity

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/drsweep/internal/distance"
)

func randomPoints(rng *rand.Rand, n, dims int) *mat.Dense {
	data := make([]float64, n*dims)
	for i := range data {
		data[i] = rng.Float64()*10 - 5
	}
	return mat.NewDense(n, dims, data)
}

// planarDataset returns n points in 5 dimensions whose last three columns are
// zero, together with an embedding that scales the first two columns by 2.
func planarDataset(n int) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(7, 11))
	high := mat.NewDense(n, 5, nil)
	low := mat.NewDense(n, 2, nil)
	for i := range n {
		x, y := rng.Float64()*4, rng.Float64()*4
		high.Set(i, 0, x)
		high.Set(i, 1, y)
		low.Set(i, 0, 2*x)
		low.Set(i, 1, 2*y)
	}
	return high, low
}

func euclidean(t testing.TB, m mat.Matrix) *mat.SymDense {
	t.Helper()
	d, err := distance.Matrix(distance.Euclidean, m)
	require.NoError(t, err)
	return d
}

func TestNeighborhoodRanking(t *testing.T) {
	d := mat.NewSymDense(4, []float64{
		0, 1, 1, 3,
		1, 0, 2, 2,
		1, 2, 0, 5,
		3, 2, 5, 0,
	})

	r, err := NeighborhoodRanking(d)
	require.NoError(t, err)
	require.Equal(t, 4, r.N())

	// ties go to the lower index
	assert.Equal(t, 1, r.At(0, 1))
	assert.Equal(t, 2, r.At(0, 2))
	assert.Equal(t, 3, r.At(0, 3))
	assert.Equal(t, 2, r.At(1, 2))
	assert.Equal(t, 3, r.At(1, 3))

	for i := range 4 {
		assert.Zero(t, r.At(i, i))
		seen := map[int]bool{}
		for j := range 4 {
			if i != j {
				seen[r.At(i, j)] = true
			}
		}
		assert.Len(t, seen, 3, "row %d ranks must be a permutation", i)
	}

	_, err = NeighborhoodRanking(mat.NewSymDense(1, nil))
	assert.ErrorIs(t, err, ErrDegenerateInput)
}

func TestCorankingMass(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, n := range []int{3, 10, 31} {
		high := euclidean(t, randomPoints(rng, n, 4))
		low := euclidean(t, randomPoints(rng, n, 2))

		q, err := CorankingFromDistances(high, low)
		require.NoError(t, err)
		assert.Equal(t, n, q.N())
		assert.Equal(t, float64(n*(n-1)), q.Sum())

		rows, cols := q.Dense().Dims()
		assert.Equal(t, n-1, rows)
		assert.Equal(t, n-1, cols)
	}
}

func TestCorankingShapeMismatch(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	a, err := NeighborhoodRanking(euclidean(t, randomPoints(rng, 10, 3)))
	require.NoError(t, err)
	b, err := NeighborhoodRanking(euclidean(t, randomPoints(rng, 8, 3)))
	require.NoError(t, err)

	_, err = NewCorankingMatrix(a, b)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = CorankingFromEmbedding(a, randomPoints(rng, 8, 2))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = KruskalStress(euclidean(t, randomPoints(rng, 10, 3)), euclidean(t, randomPoints(rng, 8, 3)))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestIdentityEmbedding(t *testing.T) {
	high, low := planarDataset(20)
	highDist := euclidean(t, high)
	ranks, err := NeighborhoodRanking(highDist)
	require.NoError(t, err)

	q, err := CorankingFromEmbedding(ranks, low)
	require.NoError(t, err)

	for k := 1; k < 20; k++ {
		assert.Equal(t, 20.0, q.At(k, k), "diagonal at rank %d", k)
	}

	iv := KInterval{Min: 2, Max: 5}

	rnx, err := q.RNX(iv)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, rnx, 1e-12)

	bnx, err := q.BNX(iv)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, bnx, 1e-12)

	mrre, err := q.MRRE(iv)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, mrre, 1e-12)

	stress, err := KruskalStress(highDist, euclidean(t, low))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, stress, 1e-12)

	rv, err := ResidualVariance(highDist, euclidean(t, low))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, rv, 1e-9)
}

func TestRandomEmbeddingBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	for trial := range 5 {
		n := 15 + trial*5
		q, err := CorankingFromDistances(
			euclidean(t, randomPoints(rng, n, 6)),
			euclidean(t, randomPoints(rng, n, 2)),
		)
		require.NoError(t, err)

		iv := KInterval{Min: 1, Max: n - 2}
		res, err := q.MRREDirections(iv)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Trustworthiness, 0.0)
		assert.LessOrEqual(t, res.Trustworthiness, 1.0)
		assert.GreaterOrEqual(t, res.Continuity, 0.0)
		assert.LessOrEqual(t, res.Continuity, 1.0)
		assert.Greater(t, res.Combined(), 0.0)

		qnx, err := q.QNXCurve(iv)
		require.NoError(t, err)
		require.Len(t, qnx, n-2)
		for _, v := range qnx {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}

		bnx, err := q.BNXCurve(iv)
		require.NoError(t, err)
		for _, v := range bnx {
			assert.LessOrEqual(t, math.Abs(v), 1.0)
		}
	}
}

func TestKIntervalValidate(t *testing.T) {
	tests := []struct {
		name string
		iv   KInterval
		n    int
		ok   bool
	}{
		{"default", DefaultKInterval(), 20, true},
		{"widest", KInterval{Min: 1, Max: 8}, 10, true},
		{"max too large", KInterval{Min: 1, Max: 9}, 10, false},
		{"zero min", KInterval{Min: 0, Max: 3}, 10, false},
		{"inverted", KInterval{Min: 4, Max: 3}, 10, false},
		{"too few points", KInterval{Min: 1, Max: 1}, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.iv.Validate(tt.n)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrDegenerateInput)
			}
		})
	}
}

func TestIsotonicRegression(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"empty", nil, []float64{}},
		{"sorted", []float64{1, 2, 3}, []float64{1, 2, 3}},
		{"one violation", []float64{1, 3, 2, 4}, []float64{1, 2.5, 2.5, 4}},
		{"decreasing", []float64{3, 2, 1}, []float64{2, 2, 2}},
		{"cascade", []float64{1, 5, 4, 0}, []float64{1, 3, 3, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsotonicRegression(tt.in)
			assert.InDeltaSlice(t, tt.want, got, 1e-12)
		})
	}
}

func TestKruskalStress(t *testing.T) {
	high := mat.NewSymDense(3, []float64{
		0, 1, 2,
		1, 0, 3,
		2, 3, 0,
	})

	// order reversed in the embedding: the best monotone fit is the mean
	reversed := mat.NewSymDense(3, []float64{
		0, 3, 2,
		3, 0, 1,
		2, 1, 0,
	})
	s, err := KruskalStress(high, reversed)
	require.NoError(t, err)
	// fit = [2 2 2], residuals = [1 0 1], sum low^2 = 14
	assert.InDelta(t, math.Sqrt(2.0/14.0), s, 1e-12)

	_, err = KruskalStress(high, mat.NewSymDense(3, nil))
	assert.ErrorIs(t, err, ErrDegenerateInput)
}

func TestResidualVarianceDegenerate(t *testing.T) {
	high := mat.NewSymDense(3, []float64{
		0, 1, 2,
		1, 0, 3,
		2, 3, 0,
	})
	flat := mat.NewSymDense(3, []float64{
		0, 1, 1,
		1, 0, 1,
		1, 1, 0,
	})
	_, err := ResidualVariance(high, flat)
	assert.ErrorIs(t, err, ErrDegenerateInput)
}

func TestGeodesicDistances(t *testing.T) {
	t.Run("two clusters", func(t *testing.T) {
		coords := mat.NewDense(6, 1, []float64{0, 1, 2, 10, 11, 12})
		geo, k, err := GeodesicDistances(coords)
		require.NoError(t, err)
		assert.Equal(t, 3, k)
		assert.InDelta(t, 12.0, geo.At(0, 5), 1e-12)
		assert.InDelta(t, 1.0, geo.At(3, 4), 1e-12)
	})

	t.Run("arc", func(t *testing.T) {
		n := 12
		coords := mat.NewDense(n, 2, nil)
		for i := range n {
			theta := math.Pi * float64(i) / float64(n-1)
			coords.Set(i, 0, math.Cos(theta))
			coords.Set(i, 1, math.Sin(theta))
		}
		geo, k, err := GeodesicDistances(coords)
		require.NoError(t, err)
		assert.Equal(t, 2, k)
		assert.Greater(t, geo.At(0, n-1), 2.0)
		assert.Less(t, geo.At(0, n-1), math.Pi)
	})
}

func TestEvaluator(t *testing.T) {
	high, low := planarDataset(20)
	ref, err := NewReference(euclidean(t, high))
	require.NoError(t, err)

	e := NewEvaluator()
	require.NoError(t, e.Validate(ref.N()))

	scores, err := e.Evaluate(ref, low)
	require.NoError(t, err)
	assert.ElementsMatch(t, DefaultObjectives(), keys(scores))
	assert.InDelta(t, 1.0, scores[ObjectiveRNX], 1e-12)
	assert.InDelta(t, 0.0, scores[ObjectiveMRRE], 1e-12)
	assert.InDelta(t, 0.0, scores[ObjectiveStress], 1e-12)

	only := NewEvaluator(WithObjectives(ObjectiveStress), WithInterval(KInterval{Min: 1, Max: 3}))
	scores, err = only.Evaluate(ref, low)
	require.NoError(t, err)
	assert.Equal(t, []string{ObjectiveStress}, keys(scores))

	_, err = e.Evaluate(ref, mat.NewDense(5, 2, nil))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	bad := NewEvaluator(WithObjectives("trustworthiness"))
	assert.Error(t, bad.Validate(20))

	assert.ErrorIs(t, NewEvaluator(WithInterval(KInterval{Min: 2, Max: 30})).Validate(20), ErrDegenerateInput)
}

// arcDataset places n points on a line and embeds them in the same order
// around most of a circle, so Euclidean distances in the embedding fold back
// while path lengths along it keep growing with |i-j|.
func arcDataset(n int) (*mat.Dense, *mat.Dense) {
	high := mat.NewDense(n, 2, nil)
	low := mat.NewDense(n, 2, nil)
	for i := range n {
		high.Set(i, 0, float64(i))
		theta := 1.8 * math.Pi * float64(i) / float64(n-1)
		low.Set(i, 0, math.Cos(theta))
		low.Set(i, 1, math.Sin(theta))
	}
	return high, low
}

func TestEvaluatorGeodesicStress(t *testing.T) {
	high, low := arcDataset(20)
	ref, err := NewReference(euclidean(t, high))
	require.NoError(t, err)

	plain, err := NewEvaluator(WithObjectives(ObjectiveStress)).Evaluate(ref, low)
	require.NoError(t, err)
	geodesic, err := NewEvaluator(WithGeodesicStress(true), WithObjectives(ObjectiveStress)).Evaluate(ref, low)
	require.NoError(t, err)

	geo, k, err := GeodesicDistances(low)
	require.NoError(t, err)
	assert.Equal(t, 2, k)
	want, err := KruskalStress(ref.Distances, geo)
	require.NoError(t, err)

	assert.InDelta(t, want, geodesic[ObjectiveStress], 1e-12)
	assert.InDelta(t, 0.0, geodesic[ObjectiveStress], 5e-3)
	assert.Greater(t, plain[ObjectiveStress], 0.05)
}

func keys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func BenchmarkCorankingFromEmbedding(b *testing.B) {
	rng := rand.New(rand.NewPCG(9, 9))
	for _, n := range []int{100, 300} {
		b.Run(fmt.Sprintf("N%d", n), func(b *testing.B) {
			ranks, err := NeighborhoodRanking(euclidean(b, randomPoints(rng, n, 10)))
			require.NoError(b, err)
			coords := randomPoints(rng, n, 2)

			b.ResetTimer()
			for b.Loop() {
				q, _ := CorankingFromEmbedding(ranks, coords)
				_, _ = q.RNX(DefaultKInterval())
			}
		})
	}
}

func BenchmarkKruskalStress(b *testing.B) {
	rng := rand.New(rand.NewPCG(10, 10))
	high := euclidean(b, randomPoints(rng, 200, 10))
	low := euclidean(b, randomPoints(rng, 200, 2))

	b.ResetTimer()
	for b.Loop() {
		_, _ = KruskalStress(high, low)
	}
}
