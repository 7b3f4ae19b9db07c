// Package convert provides type conversion utilities.
package convert

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
)

// ToFloat64 converts various numeric types to float64.
// Returns 0 for unsupported types or parse failures.
func ToFloat64(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case uint64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	default:
		return 0
	}
}

// DigitsToBig extracts the decimal digits of s and parses them as a
// non-negative big integer. "1,500 wei" becomes 1500. Returns 0 when no
// digit is present.
func DigitsToBig(s string) *big.Int {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return new(big.Int)
	}
	n, ok := new(big.Int).SetString(b.String(), 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

// ToBigInt coerces ints, floats and digit-bearing strings to *big.Int.
func ToBigInt(v any) *big.Int {
	switch t := v.(type) {
	case nil:
		return new(big.Int)
	case int:
		return big.NewInt(int64(t))
	case int64:
		return big.NewInt(t)
	case uint64:
		return new(big.Int).SetUint64(t)
	case float64:
		return big.NewInt(int64(t))
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return big.NewInt(i)
		}
		return DigitsToBig(t.String())
	case string:
		return DigitsToBig(t)
	case *big.Int:
		if t == nil {
			return new(big.Int)
		}
		return new(big.Int).Set(t)
	default:
		return new(big.Int)
	}
}
