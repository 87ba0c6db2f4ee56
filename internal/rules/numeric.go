// internal/rules/numeric.go
package rules

import (
	"encoding/json"
	"math"
)

// isNumber reports whether v is a numeric threshold.
// Booleans and numeric strings are rejected: thresholds are typed, not coerced.
func isNumber(v any) bool {
	_, ok := toFloat64(v)
	return ok
}

// toFloat64 converts value to float64 if it's a numeric type.
// Handles float64 from encoding/json and structpb, int from yaml.v3, and
// json.Number from decoders using UseNumber.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// toInt converts an integral number to int.
// Floats with a fractional part, NaN, infinities and values outside the int
// range are rejected.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		if n < math.MinInt || n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case uint:
		return uintToInt(uint64(n))
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return uintToInt(uint64(n))
	case uint64:
		return uintToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return toInt(i)
		}
	}
	f, ok := toFloat64(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	// float64(math.MinInt) is exact; -float64(math.MinInt) is the first
	// value past MaxInt.
	if f < float64(math.MinInt) || f >= -float64(math.MinInt) {
		return 0, false
	}
	return int(f), true
}

func uintToInt(n uint64) (int, bool) {
	if n > math.MaxInt {
		return 0, false
	}
	return int(n), true
}
