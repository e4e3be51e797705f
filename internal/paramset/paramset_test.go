package paramset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIgnoresIDAndOrder(t *testing.T) {
	a := ParameterSet{ID: 1, Hyperparameters: Hyperparameters{"perplexity": 5, "metric": "euclidean", "early": true}}
	b := ParameterSet{ID: 99, Hyperparameters: Hyperparameters{"early": true, "metric": "euclidean", "perplexity": 5.0}}

	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, `early=true;metric="euclidean";perplexity=5`, a.Key())

	c := ParameterSet{ID: 1, Hyperparameters: Hyperparameters{"perplexity": 5.5, "metric": "euclidean", "early": true}}
	assert.NotEqual(t, a.Key(), c.Key())
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestKeyQuotesStrings(t *testing.T) {
	a := Hyperparameters{"init": "5"}
	b := Hyperparameters{"init": 5}
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestGetters(t *testing.T) {
	hp := Hyperparameters{"n_iter": 300.0, "eps": 1e-3, "metric": "cosine", "verbose": false, "ratio": 0.5}

	n, err := hp.Int("n_iter", 0)
	require.NoError(t, err)
	assert.Equal(t, 300, n)

	n, err = hp.Int("missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = hp.Int("ratio", 0)
	assert.Error(t, err)

	eps, err := hp.Float("eps", 0)
	require.NoError(t, err)
	assert.Equal(t, 1e-3, eps)

	_, err = hp.Float("metric", 0)
	assert.Error(t, err)

	m, err := hp.Text("metric", "euclidean")
	require.NoError(t, err)
	assert.Equal(t, "cosine", m)

	v, err := hp.Bool("verbose", true)
	require.NoError(t, err)
	assert.False(t, v)

	assert.Equal(t, []string{"eps", "metric", "n_iter", "ratio", "verbose"}, hp.Names())
}

func TestGenerate(t *testing.T) {
	grid := Grid{
		"metric":       {"euclidean", "cosine"},
		"n_components": {2},
		"n_iter":       {100, 200, 300},
	}

	res, err := Generate(grid)
	require.NoError(t, err)
	require.Len(t, res.Sets, 6)
	assert.Zero(t, res.Duplicates)
	assert.Zero(t, res.Resumed)

	keys := map[string]bool{}
	for i, ps := range res.Sets {
		assert.Equal(t, int64(i), ps.ID)
		keys[ps.Key()] = true
	}
	assert.Len(t, keys, 6)

	// names ascending, values in grid order, last name fastest
	assert.Equal(t, "euclidean", res.Sets[0].Hyperparameters["metric"])
	assert.Equal(t, 100, res.Sets[0].Hyperparameters["n_iter"])
	assert.Equal(t, 200, res.Sets[1].Hyperparameters["n_iter"])
	assert.Equal(t, "cosine", res.Sets[3].Hyperparameters["metric"])
}

func TestGenerateDuplicatesAndResume(t *testing.T) {
	grid := Grid{"n_iter": {100, 100.0, 200, 300}}

	res, err := Generate(grid)
	require.NoError(t, err)
	assert.Len(t, res.Sets, 3)
	assert.Equal(t, 1, res.Duplicates)

	// an earlier run persisted n_iter=200 under a different id
	done := NewKeySet(ParameterSet{ID: 41, Hyperparameters: Hyperparameters{"n_iter": 200}}.Key())
	res, err = Generate(grid, WithExclusions(done), WithStartID(42))
	require.NoError(t, err)
	require.Len(t, res.Sets, 2)
	assert.Equal(t, 1, res.Resumed)
	assert.Equal(t, int64(42), res.Sets[0].ID)
	assert.Equal(t, int64(43), res.Sets[1].ID)
	for _, ps := range res.Sets {
		assert.False(t, done.Contains(ps.Key()))
	}
}

func TestGridValidate(t *testing.T) {
	_, err := Generate(Grid{})
	assert.ErrorIs(t, err, ErrEmptyGrid)

	_, err = Generate(Grid{"n_iter": {}})
	assert.ErrorIs(t, err, ErrEmptyGrid)

	_, err = Generate(Grid{"n_iter": {[]int{1}}})
	assert.Error(t, err)

	err = Grid{"n-iter": {10}, "N_Iter": {20}}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"n_iter"`)

	assert.NoError(t, Grid{"n_iter": {10}, "n_init": {1}}.Validate())
}

func TestColumnName(t *testing.T) {
	assert.Equal(t, "n_iter", ColumnName("N-Iter"))
	assert.Equal(t, "remote_smacof", ColumnName("remote:smacof"))
	assert.Equal(t, "swiss_roll", ColumnName("swiss_roll"))
}

func TestGridWith(t *testing.T) {
	g := Grid{"n_iter": {100}}

	withMetric := g.With(MetricKey, "euclidean", "cosine")
	assert.Len(t, withMetric[MetricKey], 2)
	assert.NotContains(t, g, MetricKey)

	own := Grid{MetricKey: {"chebyshev"}}.With(MetricKey, "euclidean")
	assert.Equal(t, []any{"chebyshev"}, own[MetricKey])
}

func TestShard(t *testing.T) {
	grid := Grid{"a": {1, 2, 3, 4}, "b": {"x", "y", "z"}}
	res, err := Generate(grid)
	require.NoError(t, err)

	for _, workers := range []int{1, 4, 5, 20} {
		shards := Shard(res.Sets, workers, 42)
		require.Len(t, shards, workers)

		seen := map[int64]bool{}
		total := 0
		for _, shard := range shards {
			assert.LessOrEqual(t, len(shard), (len(res.Sets)+workers-1)/workers)
			for _, ps := range shard {
				assert.False(t, seen[ps.ID], "set %d dealt twice", ps.ID)
				seen[ps.ID] = true
				total++
			}
		}
		assert.Equal(t, len(res.Sets), total)
	}

	assert.Equal(t, Shard(res.Sets, 3, 7), Shard(res.Sets, 3, 7))
}
