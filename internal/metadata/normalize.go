// Package metadata turns front-matter mappings into scalar-safe chunk metadata.
package metadata

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ListSeparator joins sequence values.
const ListSeparator = ", "

// Normalize coerces every value in m to a scalar: nil, string, bool, int64 or
// float64. It never fails, and Normalize(Normalize(m)) equals Normalize(m).
func Normalize(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = NormalizeValue(v)
	}
	return out
}

// unsignedValue keeps values that fit in int64 numeric and renders larger
// ones as decimal strings.
func unsignedValue(x uint64) any {
	if x > math.MaxInt64 {
		return strconv.FormatUint(x, 10)
	}
	return int64(x)
}

// NormalizeValue applies the scalar-coercion rule to one value.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string, bool, int64, float64:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return unsignedValue(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return unsignedValue(x)
	case float32:
		return float64(x)
	case time.Time:
		return formatTime(x)
	case []byte:
		return string(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts = append(parts, scalarString(rv.Index(i).Interface()))
		}
		return strings.Join(parts, ListSeparator)
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return NormalizeValue(rv.Elem().Interface())
	case reflect.Map, reflect.Struct:
		if s, ok := v.(fmt.Stringer); ok && rv.Kind() == reflect.Struct {
			return s.String()
		}
		return toJSON(v)
	}

	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}

// scalarString renders one sequence element.
func scalarString(v any) string {
	switch x := NormalizeValue(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func formatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

// toJSON serializes nested structures with sorted keys.
func toJSON(v any) string {
	data, err := json.Marshal(stringKeys(v))
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// stringKeys converts map[any]any (as produced by some decoders) into map[string]any.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = stringKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = stringKeys(val)
		}
		return out
	default:
		return v
	}
}

// SplitList reads a list-valued field that may be a sequence or a
// comma-separated string. Blank entries are dropped.
func SplitList(v any) []string {
	if v == nil {
		return nil
	}
	var raw []string
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			raw = append(raw, scalarString(rv.Index(i).Interface()))
		}
	default:
		raw = strings.Split(scalarString(v), ",")
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
