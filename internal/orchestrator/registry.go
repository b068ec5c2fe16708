package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/BartekS5/cmigrate/internal/output"
)

// All runs every registered type in registration order. It can never be
// registered itself.
const All = "all"

// Stats counts the records of one type in the legacy system and how many of
// them already have a destination record.
type Stats struct {
	Total    int
	Imported int
}

func (s Stats) Add(o Stats) Stats {
	return Stats{Total: s.Total + o.Total, Imported: s.Imported + o.Imported}
}

// RunOptions is what a unit sees of one invocation.
type RunOptions struct {
	IDs    []string
	Limit  int
	Offset int
	// Update rewrites records already migrated; Force imports them again as
	// new records.
	Update   bool
	Force    bool
	Progress bool
}

// Unit migrates one type.
type Unit interface {
	Run(ctx context.Context, opts RunOptions) (Stats, error)
	Stats(ctx context.Context) (Stats, error)
}

// Args identify what a factory is building.
type Args struct {
	Key    string
	Tenant string
}

// Factory builds a unit. countsOnly units are only asked for Stats and may
// skip opening anything they need just for writing.
type Factory func(args Args, reporter *output.Reporter, countsOnly bool) (Unit, error)

type Type struct {
	Key     string
	Title   string
	Factory Factory
}

// Registry is the ordered table of migration types.
type Registry struct {
	types []Type
	index map[string]int
}

func NewRegistry() *Registry {
	return &Registry{index: map[string]int{}}
}

// Register adds a type. An empty title is derived from the key.
func (r *Registry) Register(key, title string, factory Factory) error {
	switch {
	case strings.TrimSpace(key) == "":
		return errors.New("register migration type: empty key")
	case key == All:
		return fmt.Errorf("register migration type: %q is reserved", All)
	case factory == nil:
		return fmt.Errorf("register migration type %q: nil factory", key)
	}
	if _, ok := r.index[key]; ok {
		return fmt.Errorf("register migration type %q: already registered", key)
	}
	if title == "" {
		title = cases.Title(language.English).String(strings.NewReplacer("_", " ", "-", " ").Replace(key))
	}
	r.index[key] = len(r.types)
	r.types = append(r.types, Type{Key: key, Title: title, Factory: factory})
	return nil
}

func (r *Registry) Lookup(key string) (Type, bool) {
	i, ok := r.index[key]
	if !ok {
		return Type{}, false
	}
	return r.types[i], true
}

// Types lists the registered types in registration order.
func (r *Registry) Types() []Type {
	return append([]Type(nil), r.types...)
}
