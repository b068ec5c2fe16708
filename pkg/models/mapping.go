package models

import "encoding/json"

// Definitions represents the root of the JSON definitions file. Types run in
// the order they are listed.
type Definitions struct {
	Version string           `json:"version"`
	Types   []TypeDefinition `json:"types"`
}

// TypeDefinition describes one runnable migration type.
type TypeDefinition struct {
	Key         string                `json:"key"`
	Title       string                `json:"title,omitempty"`
	KeyField    string                `json:"keyField"`
	Source      SourceDefinition      `json:"source"`
	Map         MapDefinition         `json:"map"`
	Destination DestinationDefinition `json:"destination"`
	Fields      []FieldConfig         `json:"fields"`
	Required    []string              `json:"required,omitempty"`
}

type SourceDefinition struct {
	Kind    string                 `json:"kind"`
	Options map[string]interface{} `json:"options"`
}

type MapDefinition struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Prefix    string `json:"prefix,omitempty"`
	Flush     string `json:"flush,omitempty"`
	CacheSize int    `json:"cacheSize,omitempty"`
	Preload   bool   `json:"preload,omitempty"`
}

type DestinationDefinition struct {
	Kind       string `json:"kind"`
	Collection string `json:"collection,omitempty"`
	Table      string `json:"table,omitempty"`
	IDColumn   string `json:"idColumn,omitempty"`
}

// FieldConfig maps one source field onto a destination field.
type FieldConfig struct {
	Source string `json:"source"`
	Dest   string `json:"dest"`
	Type   string `json:"type,omitempty"`
	Format string `json:"format,omitempty"`
}

func LoadDefinitions(data []byte) (*Definitions, error) {
	var d Definitions
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
