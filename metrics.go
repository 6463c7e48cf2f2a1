package gokairos

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Metric is a single data point extracted from an event.
type Metric struct {
	Name      string
	Value     Value
	Timestamp int64 // Unix seconds
}

// Value is the numeric value of a Metric.
//
// Values coerced from templates or scalar fields are floats and always render with a
// fractional part. Values taken verbatim from nested mappings keep integer rendering when
// they were integers to begin with.
type Value struct {
	Float float64
	Int   int64
	IsInt bool
}

// FloatValue returns a floating point Value.
func FloatValue(f float64) Value {
	return Value{Float: f}
}

// IntValue returns an integral Value.
func IntValue(i int64) Value {
	return Value{Float: float64(i), Int: i, IsInt: true}
}

func (v Value) String() string {
	if v.IsInt {
		return strconv.FormatInt(v.Int, 10)
	}
	return formatFloat(v.Float)
}

// formatFloat renders f in its shortest decimal form, forcing a fractional part for
// integral values (42 becomes "42.0").
func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// CoerceFloat converts a field value to a float. Strings are read up to the end of their
// leading number, anything without one or not finite becomes 0.
func CoerceFloat(v interface{}) float64 {
	var f float64
	switch v := v.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int8:
		f = float64(v)
	case int16:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint8:
		f = float64(v)
	case uint16:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		f = parseFloat(string(v))
	case string:
		f = parseFloat(v)
	default:
		if IsSequence(v) {
			return 0
		}
		if _, ok := AsMapping(v); ok {
			return 0
		}
		f = parseFloat(Stringify(v))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// parseFloat reads the leading number of s, ignoring whatever follows it ("250ms" is 250).
func parseFloat(s string) float64 {
	prefix := leadingNumber(s, false)
	if prefix == "" {
		return 0
	}
	// Out of range prefixes come back as +-Inf or 0, CoerceFloat zeroes the infinities.
	f, _ := strconv.ParseFloat(prefix, 64)
	return f
}

// leadingNumber returns the numeric prefix of s after any leading whitespace, in the form
// [+-][digits][.digits][e[+-]digits] with at least one mantissa digit.  With integer set
// only [+-]digits is taken.
func leadingNumber(s string, integer bool) string {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	end := skipDigits(s, i)
	mantissa := end > i
	if integer {
		if !mantissa {
			return ""
		}
		return s[:end]
	}
	if end < len(s) && s[end] == '.' {
		if frac := skipDigits(s, end+1); frac > end+1 {
			end = frac
			mantissa = true
		}
	}
	if !mantissa {
		return ""
	}
	if end < len(s) && (s[end] == 'e' || s[end] == 'E') {
		j := end + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if exp := skipDigits(s, j); exp > j {
			end = exp
		}
	}
	return s[:end]
}

func skipDigits(s string, i int) int {
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i
}

// NativeValue converts a leaf of a nested mapping to a Value, keeping integers integral.
func NativeValue(v interface{}) Value {
	switch v := v.(type) {
	case int:
		return IntValue(int64(v))
	case int8:
		return IntValue(int64(v))
	case int16:
		return IntValue(int64(v))
	case int32:
		return IntValue(int64(v))
	case int64:
		return IntValue(v)
	case uint:
		if uint64(v) <= math.MaxInt64 {
			return IntValue(int64(v))
		}
	case uint8:
		return IntValue(int64(v))
	case uint16:
		return IntValue(int64(v))
	case uint32:
		return IntValue(int64(v))
	case uint64:
		if v <= math.MaxInt64 {
			return IntValue(int64(v))
		}
	case json.Number:
		if i, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			return IntValue(i)
		}
	}
	return FloatValue(CoerceFloat(v))
}

// CoerceTimestamp converts a field value to Unix seconds. Strings are read up to the end of
// their leading integer, non-numeric values become 0.
func CoerceTimestamp(v interface{}) int64 {
	switch v := v.(type) {
	case time.Time:
		return v.Unix()
	case *time.Time:
		if v == nil {
			return 0
		}
		return v.Unix()
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		if i, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			return i
		}
	case string:
		return parseTimestamp(v)
	}
	return int64(CoerceFloat(v))
}

// parseTimestamp reads the leading integer of s, "1600000006.7" is 1600000006.
func parseTimestamp(s string) int64 {
	prefix := leadingNumber(s, true)
	if prefix == "" {
		return 0
	}
	i, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0
	}
	return i
}
