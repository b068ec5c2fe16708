package remote

import (
	"errors"
	"fmt"

	"github.com/BartekS5/cmigrate/pkg/utils"
)

// FieldKind says how a field is read from a response element.
type FieldKind string

const (
	// Text is the trimmed text of the element at Path.
	Text FieldKind = "text"
	// Attr is attribute Attr of the element at Path (or of the record
	// element when Path is empty).
	Attr FieldKind = "attr"
	// List is the text of every element matching Path.
	List FieldKind = "list"
	// Records turns every element matching Path into a nested record.
	Records FieldKind = "records"
	// Rich parses the text of the element at Path as an XML fragment and
	// stores it as a nested record.
	Rich FieldKind = "rich"
)

type Field struct {
	Name string    `json:"name"`
	Kind FieldKind `json:"kind"`
	Path string    `json:"path"`
	Attr string    `json:"attr,omitempty"`
}

// Fetch is one RPC call made per item. The first fetch of a Config is the
// base fetch; the filter sees only what it produced. Record is the path of
// the element fields are read from, empty meaning the response root.
// Optional fetches that fail leave their fields unset instead of skipping
// the record.
type Fetch struct {
	Name     string  `json:"name"`
	Method   string  `json:"method"`
	IDParam  string  `json:"idParam,omitempty"`
	Record   string  `json:"record,omitempty"`
	Fields   []Field `json:"fields"`
	Optional bool    `json:"optional,omitempty"`
}

// Config describes the remote tree.
type Config struct {
	Root     string
	RootName string

	FolderMethod   string
	FolderParam    string
	FolderPath     string
	FolderIDAttr   string
	FolderNameAttr string

	ListMethod string
	ListParam  string
	ItemPath   string
	ItemIDAttr string

	Fetches []Fetch

	// KeyField receives the item id and FolderField the folder path.
	KeyField    string
	FolderField string

	// SkipWhen rejects records whose base fields equal any of these values.
	SkipWhen map[string]string
}

func (c *Config) setDefaults() {
	def := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	def(&c.FolderParam, "id")
	def(&c.FolderPath, "folder")
	def(&c.FolderIDAttr, "id")
	def(&c.FolderNameAttr, "name")
	def(&c.ListParam, "id")
	def(&c.ItemPath, "item")
	def(&c.ItemIDAttr, "id")
	def(&c.KeyField, "id")
	def(&c.FolderField, "folder")
	for i := range c.Fetches {
		def(&c.Fetches[i].IDParam, "id")
	}
}

func (c *Config) Validate() error {
	c.setDefaults()
	switch {
	case c.Root == "":
		return errors.New("remote source: root is required")
	case c.FolderMethod == "":
		return errors.New("remote source: folderMethod is required")
	case c.ListMethod == "":
		return errors.New("remote source: listMethod is required")
	case len(c.Fetches) == 0:
		return errors.New("remote source: at least one fetch is required")
	}
	names := map[string]bool{}
	for _, f := range c.Fetches {
		if f.Name == "" || f.Method == "" {
			return errors.New("remote source: every fetch needs a name and a method")
		}
		if names[f.Name] {
			return fmt.Errorf("remote source: duplicate fetch %q", f.Name)
		}
		names[f.Name] = true
		for _, fld := range f.Fields {
			if fld.Name == "" {
				return fmt.Errorf("remote source: fetch %q: field without name", f.Name)
			}
			switch fld.Kind {
			case Text, List, Records, Rich:
				if fld.Path == "" {
					return fmt.Errorf("remote source: field %q: path is required", fld.Name)
				}
			case Attr:
				if fld.Attr == "" {
					return fmt.Errorf("remote source: field %q: attr is required", fld.Name)
				}
			default:
				return fmt.Errorf("remote source: field %q: unknown kind %q", fld.Name, fld.Kind)
			}
		}
	}
	if c.Fetches[0].Optional {
		return errors.New("remote source: the base fetch cannot be optional")
	}
	return nil
}

// ConfigFromOptions builds a Config from definitions file options.
func ConfigFromOptions(raw map[string]interface{}) (Config, error) {
	var c Config
	opts := utils.NewOptions(raw).
		RequiredString("root", &c.Root).
		String("rootName", &c.RootName).
		RequiredString("folderMethod", &c.FolderMethod).
		String("folderParam", &c.FolderParam).
		String("folderPath", &c.FolderPath).
		String("folderIdAttr", &c.FolderIDAttr).
		String("folderNameAttr", &c.FolderNameAttr).
		RequiredString("listMethod", &c.ListMethod).
		String("listParam", &c.ListParam).
		String("itemPath", &c.ItemPath).
		String("itemIdAttr", &c.ItemIDAttr).
		String("keyField", &c.KeyField).
		String("folderField", &c.FolderField).
		Decode("skipWhen", &c.SkipWhen).
		Decode("fetches", &c.Fetches)
	if err := opts.Err(); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
