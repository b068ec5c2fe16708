package etl

import (
	"fmt"
	"strings"
)

type Validator struct {
	Required []string
}

func NewValidator(required []string) *Validator {
	return &Validator{Required: required}
}

// ValidateDocument checks that every required destination field is present
// and not blank.
func (v *Validator) ValidateDocument(doc Document) error {
	if v == nil {
		return nil
	}
	var missing []string
	for _, field := range v.Required {
		val, ok := doc[field]
		if !ok || val == nil {
			missing = append(missing, field)
			continue
		}
		if s, isString := val.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
