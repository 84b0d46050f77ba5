package signal

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Payload holds the normalized event body of a signal. Values are the
// result of JSON decoding: strings, bools, float64 numbers, nested
// map[string]any objects and []any arrays.
type Payload map[string]any

// Clone returns a shallow copy of the payload. Nested maps and slices are
// shared; adapters that rewrite nested values must copy them first.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ValueAt resolves a dotted path ("deal.properties.stage") against the
// payload. The second return value reports whether the path exists; a path
// that runs into a non-map value or a missing key is undefined.
func (p Payload) ValueAt(path string) (any, bool) {
	if p == nil || path == "" {
		return nil, false
	}

	var current any = map[string]any(p)
	for _, segment := range strings.Split(path, ".") {
		node, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// StringAt returns the string value at path, coercing scalars.
// Returns "" when the path is undefined.
func (p Payload) StringAt(path string) string {
	v, ok := p.ValueAt(path)
	if !ok || v == nil {
		return ""
	}
	return coerceString(v)
}

// Float64At returns the numeric value at path.
// The second return value is false when the path is undefined or not numeric.
func (p Payload) Float64At(path string) (float64, bool) {
	v, ok := p.ValueAt(path)
	if !ok {
		return 0, false
	}
	return coerceFloat64(v)
}

// asMap normalizes the two map shapes that occur in decoded payloads.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Payload:
		return m, true
	default:
		return nil, false
	}
}

// Canonical returns a deterministic serialization of the payload: object
// keys sorted, nested objects and arrays rendered recursively. Two payloads
// with the same content always canonicalize to the same string, regardless
// of map iteration order, which makes the form safe to hash.
func (p Payload) Canonical() string {
	var b strings.Builder
	writeCanonical(&b, map[string]any(p))
	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte('=')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case Payload:
		writeCanonical(b, map[string]any(val))
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	case string:
		b.WriteString(val)
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case int:
		b.WriteString(strconv.Itoa(val))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	default:
		fmt.Fprintf(b, "%v", val)
	}
}

// coerceString converts scalar payload values to their string form
func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// coerceFloat64 converts numeric payload values (including numeric strings)
// to float64
func coerceFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
