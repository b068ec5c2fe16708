package etl

import (
	"fmt"
	"strings"

	"github.com/BartekS5/cmigrate/internal/source"
	"github.com/BartekS5/cmigrate/pkg/models"
	"github.com/BartekS5/cmigrate/pkg/utils"
)

type Transformer struct {
	Fields []models.FieldConfig
}

func NewTransformer(fields []models.FieldConfig) *Transformer {
	return &Transformer{Fields: fields}
}

// Transform maps rec onto a destination document. Source names may use dots
// to reach into nested records. Missing source fields are left out.
func (t *Transformer) Transform(rec source.Record) (Document, error) {
	doc := make(Document, len(t.Fields))
	for _, f := range t.Fields {
		val, ok := lookup(rec, f.Source)
		if !ok {
			continue
		}
		converted, err := utils.ConvertField(val, f)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Source, err)
		}
		dest := f.Dest
		if dest == "" {
			dest = f.Source
		}
		doc[dest] = converted
	}
	return doc, nil
}

func lookup(rec source.Record, path string) (interface{}, bool) {
	var cur interface{} = rec
	for _, part := range strings.Split(path, ".") {
		switch m := cur.(type) {
		case source.Record:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]interface{}:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}
