package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_SortsKeysRecursively(t *testing.T) {
	a := map[string]any{
		"b": 2,
		"a": map[string]any{"z": "last", "m": []any{3, "x", nil}},
	}
	b := map[string]any{
		"a": map[string]any{"m": []any{3, "x", nil}, "z": "last"},
		"b": int64(2),
	}

	ca, err := Canonicalize(a)
	require.NoError(t, err)
	cb, err := Canonicalize(b)
	require.NoError(t, err)

	assert.Equal(t, `{"a":{"m":[3,"x",null],"z":"last"},"b":2}`, ca)
	assert.Equal(t, ca, cb)
}

func TestCanonicalize_NumbersAndTimes(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("IST", 19800))

	got, err := Canonicalize(map[string]any{
		"f":    float64(42),
		"n":    json.Number("7"),
		"wn":   json.Number("8.0"),
		"t":    ts,
		"s":    "2025-01-02T08:34:05+05:30",
		"u":    json.Number("18446744073709551615"),
		"flag": true,
	})
	require.NoError(t, err)
	assert.Equal(t,
		`{"f":42,"flag":true,"n":7,"s":"2025-01-02T08:34:05+05:30","t":"2025-01-02T03:04:05Z","u":18446744073709551615,"wn":8}`,
		got)
}

func TestCanonicalize_StringsAreHashedVerbatim(t *testing.T) {
	a, err := Canonicalize(map[string]any{"username": "2026-01-01T02:00:00+02:00"})
	require.NoError(t, err)
	b, err := Canonicalize(map[string]any{"username": "2026-01-01T00:00:00Z"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCanonicalize_RejectsInvalidUTF8(t *testing.T) {
	for name, payload := range map[string]map[string]any{
		"value":  {"d": "\xff"},
		"key":    {"\xfe": "v"},
		"nested": {"m": map[string]any{"d": []any{"ok", "\xfe"}}},
		"slice":  {"s": []string{"\xff"}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Canonicalize(payload)
			assert.ErrorIs(t, err, ErrNonCanonical)
		})
	}
}

func TestCanonicalize_Rejects(t *testing.T) {
	cases := map[string]any{
		"fraction": 1.5,
		"number":   json.Number("0.25"),
		"struct":   struct{}{},
		"huge":     float64(1 << 60),
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Canonicalize(map[string]any{"v": v})
			assert.ErrorIs(t, err, ErrNonCanonical)
		})
	}
}

func TestCanonicalize_EscapesStrings(t *testing.T) {
	got, err := Canonicalize(map[string]any{"q": `say "hi"` + "\n"})
	require.NoError(t, err)
	assert.Equal(t, `{"q":"say \"hi\"\n"}`, got)
}
