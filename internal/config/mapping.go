package config

import (
	"fmt"
	"os"

	"github.com/BartekS5/cmigrate/pkg/models"
)

// LoadDefinitions reads and parses the definitions file at filePath. Every
// type needs a key and a source kind, and keys must be unique.
func LoadDefinitions(filePath string) (*models.Definitions, error) {
	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions file '%s': %w", filePath, err)
	}

	defs, err := models.LoadDefinitions(bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse definitions file '%s': %w", filePath, err)
	}

	seen := map[string]bool{}
	for i, t := range defs.Types {
		if t.Key == "" {
			return nil, fmt.Errorf("definitions '%s': type %d has no key", filePath, i)
		}
		if seen[t.Key] {
			return nil, fmt.Errorf("definitions '%s': duplicate type %q", filePath, t.Key)
		}
		seen[t.Key] = true
		if t.Source.Kind == "" {
			return nil, fmt.Errorf("definitions '%s': type %q has no source kind", filePath, t.Key)
		}
	}
	return defs, nil
}
