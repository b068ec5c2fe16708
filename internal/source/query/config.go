package query

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/BartekS5/cmigrate/pkg/utils"
)

// FieldType says where a field's column expression comes from.
type FieldType string

const (
	// Column is a column of the base table.
	Column FieldType = "column"
	// Revision is a column of the joined revision table.
	Revision FieldType = "revision"
	// ContentType is a column of the per-content-type table.
	ContentType FieldType = "content_type"
	// FieldTable is the value column of a per-field table.
	FieldTable FieldType = "field"
	// File is a URL built from a prefix and the path of a joined file row.
	File FieldType = "file"
	// Term lists the names of the terms of one vocabulary.
	Term FieldType = "term"
	// Subquery is a correlated lookup on another table.
	Subquery FieldType = "subquery"
	// Expression is caller supplied SQL, used verbatim.
	Expression FieldType = "expression"
)

// Field declares one output field.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
	// Column is the source column. For FieldTable it is the field name the
	// table is named after; for File it is the column holding the file id.
	Column string `json:"column,omitempty"`
	// ValueColumn overrides the FieldTable value column (<column>_value).
	ValueColumn string `json:"valueColumn,omitempty"`
	// ContentType selects the per-content-type table; defaults to the only
	// configured type.
	ContentType string `json:"contentType,omitempty"`
	// FromField makes a File field read its id from that per-field table.
	FromField string `json:"fromField,omitempty"`
	// Table and Key describe a Subquery: rows of Table whose Key equals the
	// base primary key.
	Table string `json:"table,omitempty"`
	Key   string `json:"key,omitempty"`
	// Vocabulary filters a Term field.
	Vocabulary string `json:"vocabulary,omitempty"`
	Expression string `json:"expression,omitempty"`
	// Aggregate collapses one-to-many joins into one separated string.
	Aggregate bool   `json:"aggregate,omitempty"`
	Separator string `json:"separator,omitempty"`
}

// Config describes the tables behind one query source. Names follow the
// common legacy CMS layout; every one of them can be overridden.
type Config struct {
	Dialect    Dialect
	Table      string
	Alias      string
	PrimaryKey string

	RevisionTable string
	RevisionKey   string

	TypeColumn   string
	Types        []string
	StatusColumn string
	Status       []string
	// Where is extra caller supplied SQL ANDed into the filter.
	Where string

	ContentTypePrefix string
	FieldTablePrefix  string
	// JoinKey links per-type and per-field tables to the base row.
	JoinKey string

	FileTable      string
	FileKey        string
	FilePathColumn string
	FileURLPrefix  string

	TermNodeTable   string
	TermNodeKey     string
	TermDataTable   string
	TermKey         string
	TermNameColumn  string
	TermVocabColumn string

	OrderBy []string
	Fields  []Field
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (c *Config) setDefaults() {
	if c.Dialect == nil {
		c.Dialect = MySQL{}
	}
	def := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	def(&c.Alias, "base")
	def(&c.PrimaryKey, "nid")
	def(&c.RevisionKey, "vid")
	def(&c.ContentTypePrefix, "content_type_")
	def(&c.FieldTablePrefix, "content_")
	def(&c.JoinKey, "vid")
	def(&c.FileTable, "files")
	def(&c.FileKey, "fid")
	def(&c.FilePathColumn, "filepath")
	def(&c.TermNodeTable, "term_node")
	def(&c.TermNodeKey, "vid")
	def(&c.TermDataTable, "term_data")
	def(&c.TermKey, "tid")
	def(&c.TermNameColumn, "name")
	def(&c.TermVocabColumn, "vid")
}

// Validate fills defaults and checks every identifier and field.
func (c *Config) Validate() error {
	c.setDefaults()
	if c.Table == "" {
		return errors.New("query source: table is required")
	}
	if len(c.Fields) == 0 {
		return errors.New("query source: at least one field is required")
	}
	for _, name := range []string{
		c.Table, c.Alias, c.PrimaryKey, c.RevisionKey, c.JoinKey,
		c.ContentTypePrefix, c.FieldTablePrefix, c.FileTable, c.FileKey, c.FilePathColumn,
		c.TermNodeTable, c.TermNodeKey, c.TermDataTable, c.TermKey, c.TermNameColumn, c.TermVocabColumn,
	} {
		if !identifier.MatchString(name) {
			return fmt.Errorf("query source: invalid identifier %q", name)
		}
	}
	for _, opt := range []string{c.RevisionTable, c.TypeColumn, c.StatusColumn} {
		if opt != "" && !identifier.MatchString(opt) {
			return fmt.Errorf("query source: invalid identifier %q", opt)
		}
	}
	if len(c.Status) > 0 && c.StatusColumn == "" {
		return errors.New("query source: status filter needs statusColumn")
	}
	if len(c.Types) > 0 && c.TypeColumn == "" {
		return errors.New("query source: type filter needs typeColumn")
	}

	seen := map[string]bool{}
	for i := range c.Fields {
		f := &c.Fields[i]
		if !identifier.MatchString(f.Name) {
			return fmt.Errorf("query source: field %d: invalid name %q", i, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("query source: duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		if f.Separator == "" {
			f.Separator = ","
		}
		if err := c.validateField(f); err != nil {
			return fmt.Errorf("query source: field %q: %w", f.Name, err)
		}
	}
	return nil
}

func (c *Config) validateField(f *Field) error {
	needIdent := func(names ...string) error {
		for _, n := range names {
			if !identifier.MatchString(n) {
				return fmt.Errorf("invalid identifier %q", n)
			}
		}
		return nil
	}
	switch f.Type {
	case Column:
		return needIdent(f.Column)
	case Revision:
		if c.RevisionTable == "" {
			return errors.New("revision field needs revisionTable")
		}
		return needIdent(f.Column)
	case ContentType:
		if f.ContentType == "" {
			if len(c.Types) != 1 {
				return errors.New("contentType is required unless exactly one type is configured")
			}
			f.ContentType = c.Types[0]
		}
		return needIdent(f.Column, c.ContentTypePrefix+f.ContentType)
	case FieldTable:
		if f.ValueColumn == "" {
			f.ValueColumn = f.Column + "_value"
		}
		return needIdent(f.Column, f.ValueColumn)
	case File:
		if f.FromField != "" {
			return needIdent(f.FromField, f.Column)
		}
		return needIdent(f.Column)
	case Term:
		return nil
	case Subquery:
		return needIdent(f.Table, f.Key, f.Column)
	case Expression:
		if f.Expression == "" {
			return errors.New("expression is required")
		}
		return nil
	default:
		return fmt.Errorf("unknown field type %q", f.Type)
	}
}

// ConfigFromOptions builds a Config from definitions file options.
func ConfigFromOptions(raw map[string]interface{}) (Config, error) {
	var (
		c       Config
		dialect string
	)
	opts := utils.NewOptions(raw)
	opts.String("dialect", &dialect).
		RequiredString("table", &c.Table).
		String("alias", &c.Alias).
		String("primaryKey", &c.PrimaryKey).
		String("revisionTable", &c.RevisionTable).
		String("revisionKey", &c.RevisionKey).
		String("typeColumn", &c.TypeColumn).
		Strings("types", &c.Types).
		String("statusColumn", &c.StatusColumn).
		Strings("status", &c.Status).
		String("where", &c.Where).
		String("contentTypePrefix", &c.ContentTypePrefix).
		String("fieldTablePrefix", &c.FieldTablePrefix).
		String("joinKey", &c.JoinKey).
		String("fileTable", &c.FileTable).
		String("fileKey", &c.FileKey).
		String("filePathColumn", &c.FilePathColumn).
		String("fileUrlPrefix", &c.FileURLPrefix).
		String("termNodeTable", &c.TermNodeTable).
		String("termNodeKey", &c.TermNodeKey).
		String("termDataTable", &c.TermDataTable).
		String("termKey", &c.TermKey).
		String("termNameColumn", &c.TermNameColumn).
		String("termVocabularyColumn", &c.TermVocabColumn).
		Strings("orderBy", &c.OrderBy).
		Decode("fields", &c.Fields)
	if err := opts.Err(); err != nil {
		return Config{}, err
	}
	d, err := DialectByName(dialect)
	if err != nil {
		return Config{}, err
	}
	c.Dialect = d
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
