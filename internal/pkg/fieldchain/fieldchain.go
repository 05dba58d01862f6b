// Package fieldchain resolves a value from loosely-typed JSON payloads by trying
// an ordered list of extractors and returning the first match.
//
// Backends and drivers disagree on field names for the same datum (order_id vs
// orderId, lat vs latitude, nested user objects). Instead of inline branching, each
// datum is described by a Chain whose order is the priority order.
package fieldchain

import (
	"math"
	"strconv"
	"strings"
)

// Extractor tries to read one candidate shape from a payload.
type Extractor[T any] func(m map[string]any) (T, bool)

// Chain is an ordered, named list of extractors.
type Chain[T any] struct {
	name       string
	extractors []Extractor[T]
}

// New creates a chain that tries extractors in the given order.
func New[T any](name string, extractors ...Extractor[T]) Chain[T] {
	return Chain[T]{name: name, extractors: extractors}
}

// Name identifies the chain in logs.
func (c Chain[T]) Name() string {
	return c.name
}

// Len returns the number of candidate shapes.
func (c Chain[T]) Len() int {
	return len(c.extractors)
}

// Extract returns the first successful extraction.
func (c Chain[T]) Extract(m map[string]any) (T, bool) {
	var zero T
	if m == nil {
		return zero, false
	}
	for _, ex := range c.extractors {
		if v, ok := ex(m); ok {
			return v, true
		}
	}
	return zero, false
}

// Lookup walks nested objects along path.
func Lookup(m map[string]any, path ...string) (any, bool) {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// Object returns the nested object at path.
func Object(m map[string]any, path ...string) (map[string]any, bool) {
	v, ok := Lookup(m, path...)
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

// String reads a non-empty identifier at path. Numbers are rendered without exponent.
func String(path ...string) Extractor[string] {
	return func(m map[string]any) (string, bool) {
		v, ok := Lookup(m, path...)
		if !ok {
			return "", false
		}
		return AsString(v)
	}
}

// Float reads a finite number at path. Numeric strings are accepted.
func Float(path ...string) Extractor[float64] {
	return func(m map[string]any) (float64, bool) {
		v, ok := Lookup(m, path...)
		if !ok {
			return 0, false
		}
		return AsFloat(v)
	}
}

// AsString converts a decoded JSON scalar to a trimmed non-empty string.
func AsString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "", false
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// AsFloat converts a decoded JSON scalar to a finite float.
func AsFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// AsBool converts booleans, 0/1 numbers and "true"/"false"/"yes"/"no" strings.
func AsBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y":
			return true, true
		case "false", "0", "no", "n":
			return false, true
		}
	}
	return false, false
}
