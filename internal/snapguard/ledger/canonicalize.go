package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"
)

// ErrNonCanonical is returned for values that have no single deterministic encoding,
// such as fractional floats, NaN, invalid UTF-8, or Go types outside the JSON data model.
var ErrNonCanonical = errors.New("ledger: value has no canonical form")

// maxExactFloat is the largest integer a float64 holds without rounding.
const maxExactFloat = 1 << 53

// Canonicalize returns a deterministic JSON string for hashing.
// Rules:
// - Sort object keys alphabetically (recursively); arrays keep their order
// - Integers only: whole float64 values are written as integers, fractions are rejected
// - Strings are hashed byte for byte and must be valid UTF-8
// - time.Time values are written as UTC RFC3339Nano
// - Compact output (no extra whitespace)
func Canonicalize(payload map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := encodeSorted(&buf, payload); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func encodeSorted(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeSorted(buf, t[k]); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
		buf.WriteByte('}')
		return nil
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, s := range t {
			m[k] = s
		}
		return encodeSorted(buf, m)
	case []any:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeSorted(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case []string:
		buf.WriteByte('[')
		for i, s := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, s); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		buf.WriteString(strconv.FormatBool(t))
		return nil
	case string:
		return writeString(buf, t)
	case time.Time:
		return writeString(buf, t.UTC().Format(time.RFC3339Nano))
	case int:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int8:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int16:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(t, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint8:
		buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint16:
		buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(t, 10))
	case json.Number:
		// Stores decode with UseNumber; accept only integral literals.
		if n, err := strconv.ParseInt(string(t), 10, 64); err == nil {
			buf.WriteString(strconv.FormatInt(n, 10))
			return nil
		}
		if n, err := strconv.ParseUint(string(t), 10, 64); err == nil {
			buf.WriteString(strconv.FormatUint(n, 10))
			return nil
		}
		f, err := t.Float64()
		if err != nil {
			return fmt.Errorf("%w: number %q", ErrNonCanonical, t)
		}
		return encodeFloat(buf, f)
	case float64:
		return encodeFloat(buf, t)
	case float32:
		return encodeFloat(buf, float64(t))
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrNonCanonical, v)
	}
	return nil
}

func encodeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > maxExactFloat {
		return fmt.Errorf("%w: non-integral number %v", ErrNonCanonical, f)
	}
	buf.WriteString(strconv.FormatInt(int64(f), 10))
	return nil
}

// writeString rejects invalid UTF-8, which json.Marshal would fold into U+FFFD.
func writeString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: invalid UTF-8 in %q", ErrNonCanonical, s)
	}
	b, _ := json.Marshal(s)
	buf.Write(b)
	return nil
}

// freezeTimes replaces time.Time values with their canonical UTC string so the
// stored payload is the one that was hashed.
func freezeTimes(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = freezeTimes(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = freezeTimes(e)
		}
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
