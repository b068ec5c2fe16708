package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/cmigrate/pkg/models"
)

func TestConvertField(t *testing.T) {
	tests := []struct {
		name string
		val  interface{}
		cfg  models.FieldConfig
		want interface{}
	}{
		{"unix string", "86400", models.FieldConfig{Type: "datetime", Format: "unix"}, time.Unix(86400, 0).UTC()},
		{"unix int64", int64(60), models.FieldConfig{Type: "datetime"}, time.Unix(60, 0).UTC()},
		{"date only", "2009-03-01", models.FieldConfig{Type: "datetime"}, time.Date(2009, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"int from bytes", []byte(" 42 "), models.FieldConfig{Type: "int"}, 42},
		{"bool from int", int64(1), models.FieldConfig{Type: "bool"}, true},
		{"enum", 3, models.FieldConfig{Type: "enum"}, "3"},
		{"passthrough", []string{"a"}, models.FieldConfig{}, []string{"a"}},
		{"nil", nil, models.FieldConfig{Type: "int"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertField(tt.val, tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvertFieldErrors(t *testing.T) {
	_, err := ConvertField("soon", models.FieldConfig{Type: "datetime"})
	assert.Error(t, err)
	_, err = ConvertField("many", models.FieldConfig{Type: "int"})
	assert.Error(t, err)
	_, err = ConvertField(struct{}{}, models.FieldConfig{Type: "string"})
	assert.Error(t, err)
}
