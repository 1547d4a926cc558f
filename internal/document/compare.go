package document

import (
	"encoding/json"
	"strings"
)

// Type ranks follow the store's cross-type ordering:
// undefined < null < bool < number < string < array < object.
const (
	rankUndefined = iota
	rankNull
	rankBool
	rankNumber
	rankString
	rankArray
	rankObject
)

func rank(v any, defined bool) int {
	if !defined {
		return rankUndefined
	}
	switch v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case float64:
		return rankNumber
	case string:
		return rankString
	case []any:
		return rankArray
	default:
		return rankObject
	}
}

// Normalize converts a Go value into its decoded-JSON form so it can be
// compared against document values (numbers become float64, structs become maps).
func Normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, float64, string:
		return t
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// Compare orders two decoded values. Undefined values sort first.
func Compare(a any, aDefined bool, b any, bDefined bool) int {
	ra, rb := rank(a, aDefined), rank(b, bDefined)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case rankBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case rankNumber:
		af, bf := a.(float64), b.(float64)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case rankString:
		return strings.Compare(a.(string), b.(string))
	}
	return 0
}

// Equal reports whether two decoded values are equal.
// Arrays and objects compare by their JSON encoding.
func Equal(a, b any) bool {
	ra, rb := rank(a, true), rank(b, true)
	if ra != rb {
		return false
	}
	if ra == rankArray || ra == rankObject {
		ja, errA := json.Marshal(a)
		jb, errB := json.Marshal(b)
		return errA == nil && errB == nil && string(ja) == string(jb)
	}
	return Compare(a, true, b, true) == 0
}
