// Package field provides tolerant, typed accessors over decoded EXPLAIN JSON
// objects. Every accessor reports absence instead of failing: the EXPLAIN
// output omits dozens of keys depending on the options that produced it.
package field

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Node is a decoded JSON object.
type Node = map[string]any

// Float returns the numeric value stored under key.
func Float(node Node, key string) (float64, bool) {
	val, ok := node[key]
	if !ok || val == nil {
		return 0, false
	}
	switch v := val.(type) {
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return finite(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return finite(f)
	default:
		return 0, false
	}
}

// finite rejects NaN and the infinities, which strconv accepts by name.
func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// round converts f to an integer, rejecting values outside the int64 range.
func round(f float64) (int64, bool) {
	f, ok := finite(math.Round(f))
	if !ok || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// Int returns the integral value stored under key, rounding fractional numbers.
func Int(node Node, key string) (int64, bool) {
	val, ok := node[key]
	if !ok || val == nil {
		return 0, false
	}
	switch v := val.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return round(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return round(f)
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return round(f)
	default:
		return 0, false
	}
}

// String returns the string stored under key. Numbers are not coerced.
func String(node Node, key string) (string, bool) {
	s, ok := node[key].(string)
	return s, ok
}

// Bool returns the boolean stored under key.
func Bool(node Node, key string) (bool, bool) {
	b, ok := node[key].(bool)
	return b, ok
}

// Strings returns the string list stored under key. Non-string items are
// skipped; an empty list is reported as absent.
func Strings(node Node, key string) ([]string, bool) {
	items, ok := node[key].([]any)
	if !ok {
		return nil, false
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, len(out) > 0
}

// Object returns the nested object stored under key.
func Object(node Node, key string) (Node, bool) {
	obj, ok := node[key].(map[string]any)
	return obj, ok
}

// Slice returns the array stored under key.
func Slice(node Node, key string) ([]any, bool) {
	items, ok := node[key].([]any)
	return items, ok
}

// FloatPtr is Float with absence expressed as nil.
func FloatPtr(node Node, key string) *float64 {
	if v, ok := Float(node, key); ok {
		return &v
	}
	return nil
}

// IntPtr is Int with absence expressed as nil.
func IntPtr(node Node, key string) *int64 {
	if v, ok := Int(node, key); ok {
		return &v
	}
	return nil
}

// StringOr returns the string under key or the empty string.
func StringOr(node Node, key string) string {
	s, _ := String(node, key)
	return s
}

// FloatOr returns the number under key or zero.
func FloatOr(node Node, key string) float64 {
	f, _ := Float(node, key)
	return f
}

// IntOr returns the integer under key or zero.
func IntOr(node Node, key string) int64 {
	i, _ := Int(node, key)
	return i
}
