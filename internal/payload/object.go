package payload

import (
	"maps"
	"math"
	"strconv"
)

// Category values carried in the "category" field of every event.
const (
	CategorySessionStart = "user"
	CategorySessionEnd   = "session_end"
	CategoryBusiness     = "business"
	CategoryResource     = "resource"
	CategoryProgression  = "progression"
	CategoryDesign       = "design"
	CategoryError        = "error"
	CategorySDKError     = "sdk_error"
)

// Categories lists every category an event may carry.
var Categories = []string{
	CategorySessionStart,
	CategorySessionEnd,
	CategoryBusiness,
	CategoryResource,
	CategoryProgression,
	CategoryDesign,
	CategoryError,
	CategorySDKError,
}

// Object is an event or annotation set.
type Object map[string]any

// Clone returns a shallow copy. Values are scalars, so the copy is
// independent.
func (o Object) Clone() Object {
	if o == nil {
		return Object{}
	}
	return maps.Clone(o)
}

// Merge copies every field of src over o and returns o.
func (o Object) Merge(src Object) Object {
	maps.Copy(o, src)
	return o
}

// Category returns the "category" field.
func (o Object) Category() string {
	return o.String("category")
}

// String returns the field as a string, or "" when absent or not a string.
func (o Object) String(key string) string {
	s, _ := o[key].(string)
	return s
}

// Has reports whether the field is present.
func (o Object) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Int64 returns the field as an integer. Integral floats are converted and
// numeric strings are parsed; fractional or out-of-range floats and
// anything else yield (0, false).
func (o Object) Int64(key string) (int64, bool) {
	switch v := o[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Float64 returns the field as a finite float. Integers are widened and
// numeric strings are parsed; NaN, infinities and anything else yield
// (0, false).
func (o Object) Float64(key string) (float64, bool) {
	var f float64
	switch v := o[key].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if !Finite(f) {
		return 0, false
	}
	return f, true
}

// Finite reports whether f is neither NaN nor an infinity.
func Finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
