package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAccessors(t *testing.T) {
	r := Record{
		"rate":    0.25,
		"count":   int64(7),
		"num":     json.Number("3.5"),
		"text":    " 12 ",
		"bad":     []int{1},
		"flag":    "true",
		"zero":    0,
		"status":  "non_compliant",
		"missing": nil,
		"nan":     "NaN",
		"inf":     []byte("-Infinity"),
		"posinf":  math.Inf(1),
	}

	assert.Equal(t, 0.25, r.Float("rate", 1))
	assert.Equal(t, 7.0, r.Float("count", 0))
	assert.Equal(t, 3.5, r.Float("num", 0))
	assert.Equal(t, 12.0, r.Float("text", 0))
	assert.Equal(t, 9.0, r.Float("bad", 9))
	assert.Equal(t, 1.0, r.Float("missing", 1))
	assert.Equal(t, 3, r.Int("num", 0))
	assert.Equal(t, 0.5, r.Float("nan", 0.5))
	assert.Equal(t, 0.5, r.Float("inf", 0.5))
	assert.Equal(t, 0.5, r.Float("posinf", 0.5))
	assert.Equal(t, 4, r.Int("nan", 4))

	assert.True(t, r.Bool("flag"))
	assert.False(t, r.Bool("zero"))
	assert.False(t, r.Bool("absent"))

	assert.Equal(t, "non_compliant", r.String("status", "compliant"))
	assert.Equal(t, "compliant", r.String("absent", "compliant"))
	assert.Equal(t, "7", r.String("count", ""))
}

func TestRecordTime(t *testing.T) {
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, raw := range []any{"2024-03-01", "2024-03-01T00:00:00", "2024-03-01T00:00:00Z", want} {
		got, ok := Record{"at": raw}.Time("at")
		require.True(t, ok, raw)
		assert.True(t, want.Equal(got), raw)
	}

	_, ok := Record{"at": "yesterday"}.Time("at")
	assert.False(t, ok)
}
