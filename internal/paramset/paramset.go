// Package paramset models hyperparameter combinations: their canonical
// identity, grid expansion with resume exclusion, and sharding across workers.
package paramset

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// MetricKey is the hyperparameter naming the distance metric of the original
// space.
const MetricKey = "metric"

// Hyperparameters maps names to int, int64, float64, string or bool values.
type Hyperparameters map[string]any

// ParameterSet is one point of the sweep grid. ID does not take part in
// identity: two sets with equal hyperparameters are duplicates.
type ParameterSet struct {
	ID              int64           `json:"id"`
	Hyperparameters Hyperparameters `json:"hyperparameters"`
}

// Key returns the canonical identity of the set.
func (p ParameterSet) Key() string {
	return p.Hyperparameters.Key()
}

// Hash is the xxhash64 of Key, hex encoded.
func (p ParameterSet) Hash() string {
	return p.Hyperparameters.Hash()
}

func (p ParameterSet) String() string {
	return fmt.Sprintf("#%d{%s}", p.ID, p.Key())
}

// Key renders the hyperparameters as name=value pairs sorted by name and
// joined by ';'. Numbers compare by value, so 5 and 5.0 render the same.
func (h Hyperparameters) Key() string {
	names := slices.Sorted(maps.Keys(h))
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(formatValue(h[name]))
	}
	return b.String()
}

func (h Hyperparameters) Hash() string {
	return strconv.FormatUint(xxhash.Sum64String(h.Key()), 16)
}

// Clone returns a shallow copy; values are immutable scalars.
func (h Hyperparameters) Clone() Hyperparameters {
	return maps.Clone(h)
}

// Names returns the hyperparameter names in ascending order.
func (h Hyperparameters) Names() []string {
	return slices.Sorted(maps.Keys(h))
}

func (h Hyperparameters) Has(name string) bool {
	_, ok := h[name]
	return ok
}

// Text returns the named value as a string, or def when absent.
func (h Hyperparameters) Text(name, def string) (string, error) {
	v, ok := h[name]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("hyperparameter %q: expected string, got %T", name, v)
	}
	return s, nil
}

// Float returns the named numeric value, or def when absent.
func (h Hyperparameters) Float(name string, def float64) (float64, error) {
	v, ok := h[name]
	if !ok {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("hyperparameter %q: expected number, got %T", name, v)
	}
	return f, nil
}

// Int returns the named value as an integer, or def when absent. Floats are
// accepted when they hold a whole number.
func (h Hyperparameters) Int(name string, def int) (int, error) {
	v, ok := h[name]
	if !ok {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("hyperparameter %q: expected integer, got %T", name, v)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("hyperparameter %q: %v is not a whole number", name, v)
	}
	return int(f), nil
}

func (h Hyperparameters) Bool(name string, def bool) (bool, error) {
	v, ok := h[name]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("hyperparameter %q: expected bool, got %T", name, v)
	}
	return b, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

func formatValue(v any) string {
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return "null"
	default:
		return strconv.Quote(fmt.Sprint(x))
	}
}
