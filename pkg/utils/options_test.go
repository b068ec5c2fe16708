package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsCoercesDeclaredScalars(t *testing.T) {
	var (
		table   string
		limit   int
		enabled bool
		types   []string
	)
	opts := NewOptions(map[string]interface{}{
		"table":   "node",
		"limit":   "25",
		"enabled": 1.0,
		"types":   "story, page",
	})
	opts.String("table", &table).Int("limit", &limit).Bool("enabled", &enabled).Strings("types", &types)

	require.NoError(t, opts.Err())
	assert.Equal(t, "node", table)
	assert.Equal(t, 25, limit)
	assert.True(t, enabled)
	assert.Equal(t, []string{"story", "page"}, types)
}

func TestOptionsReportsUnknownAndInvalid(t *testing.T) {
	var limit int
	var table string
	opts := NewOptions(map[string]interface{}{
		"limit": "many",
		"extra": true,
	})
	opts.Int("limit", &limit).RequiredString("table", &table)

	err := opts.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `option "limit"`)
	assert.Contains(t, err.Error(), `option "table": required`)
	assert.Contains(t, err.Error(), `option "extra": unknown`)
}

func TestOptionsDecodeNested(t *testing.T) {
	type field struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	var fields []field
	opts := NewOptions(map[string]interface{}{
		"fields": []interface{}{
			map[string]interface{}{"name": "title", "type": "column"},
		},
	})
	opts.Decode("fields", &fields)

	require.NoError(t, opts.Err())
	assert.Equal(t, []field{{Name: "title", Type: "column"}}, fields)
}

func TestConvertToStringFormatsFloatsWithoutExponent(t *testing.T) {
	s, err := ConvertToString(1000000.0)
	require.NoError(t, err)
	assert.Equal(t, "1000000", s)
}
