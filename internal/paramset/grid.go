package paramset

import (
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"
)

var ErrEmptyGrid = errors.New("empty hyperparameter grid")

// Grid lists candidate values per hyperparameter; the sweep covers their
// cartesian product.
type Grid map[string][]any

// Size is the number of combinations before deduplication.
func (g Grid) Size() int {
	if len(g) == 0 {
		return 0
	}
	size := 1
	for _, values := range g {
		size *= len(values)
	}
	return size
}

func (g Grid) Validate() error {
	if len(g) == 0 {
		return ErrEmptyGrid
	}
	columns := make(map[string]string, len(g))
	for _, name := range slices.Sorted(maps.Keys(g)) {
		if name == "" {
			return fmt.Errorf("%w: blank hyperparameter name", ErrEmptyGrid)
		}
		if len(g[name]) == 0 {
			return fmt.Errorf("%w: no values for %q", ErrEmptyGrid, name)
		}
		if other, ok := columns[ColumnName(name)]; ok {
			return fmt.Errorf("hyperparameters %q and %q map to the same column %q", other, name, ColumnName(name))
		}
		columns[ColumnName(name)] = name
		for _, v := range g[name] {
			switch v.(type) {
			case int, int32, int64, uint64, float32, float64, string, bool:
			default:
				return fmt.Errorf("hyperparameter %q: unsupported value %v (%T)", name, v, v)
			}
		}
	}
	return nil
}

// ColumnName lowercases name and maps anything outside [a-z0-9_] to '_'.
// Hyperparameters are stored under this form.
func ColumnName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// With returns a copy of the grid with name set to values unless the grid
// already lists name.
func (g Grid) With(name string, values ...any) Grid {
	out := maps.Clone(g)
	if out == nil {
		out = Grid{}
	}
	if _, ok := out[name]; !ok && len(values) > 0 {
		out[name] = values
	}
	return out
}

// KeySet holds canonical keys of parameter sets that already have results.
type KeySet map[string]struct{}

func NewKeySet(keys ...string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s KeySet) Contains(key string) bool {
	_, ok := s[key]
	return ok
}

type GenerateResult struct {
	Sets []ParameterSet
	// Duplicates counts combinations equal to an earlier one in the grid.
	Duplicates int
	// Resumed counts combinations skipped because they were already persisted.
	Resumed int
}

type GenerateOption func(*generator)

type generator struct {
	exclude KeySet
	nextID  int64
}

// WithExclusions skips every combination whose key is in done.
func WithExclusions(done KeySet) GenerateOption {
	return func(g *generator) {
		g.exclude = done
	}
}

// WithStartID makes the first generated set carry id.
func WithStartID(id int64) GenerateOption {
	return func(g *generator) {
		g.nextID = id
	}
}

// Generate expands the grid in a deterministic order (names ascending, the
// last name varying fastest) and assigns dense ids to the surviving sets.
func Generate(grid Grid, opts ...GenerateOption) (GenerateResult, error) {
	if err := grid.Validate(); err != nil {
		return GenerateResult{}, err
	}
	gen := &generator{}
	for _, opt := range opts {
		opt(gen)
	}

	names := slices.Sorted(maps.Keys(grid))
	res := GenerateResult{Sets: make([]ParameterSet, 0, grid.Size())}
	seen := make(KeySet, grid.Size())
	idx := make([]int, len(names))

	for {
		hp := make(Hyperparameters, len(names))
		for i, name := range names {
			hp[name] = grid[name][idx[i]]
		}
		key := hp.Key()
		switch {
		case seen.Contains(key):
			res.Duplicates++
		case gen.exclude.Contains(key):
			seen[key] = struct{}{}
			res.Resumed++
		default:
			seen[key] = struct{}{}
			res.Sets = append(res.Sets, ParameterSet{ID: gen.nextID, Hyperparameters: hp})
			gen.nextID++
		}

		pos := len(names) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(grid[names[pos]]) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			return res, nil
		}
	}
}

// Shard shuffles a copy of sets with the given seed and deals them
// round-robin into n shards. Shards never share a set.
func Shard(sets []ParameterSet, n int, seed uint64) [][]ParameterSet {
	if n < 1 {
		n = 1
	}
	shuffled := slices.Clone(sets)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	shards := make([][]ParameterSet, n)
	for i, ps := range shuffled {
		shards[i%n] = append(shards[i%n], ps)
	}
	return shards
}
