package query

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/BartekS5/cmigrate/internal/source"
)

// Query is an assembled statement and its bind arguments in placeholder
// order.
type Query struct {
	SQL  string
	Args []interface{}
}

var unsafeAlias = regexp.MustCompile(`[^A-Za-z0-9_]`)

// builder assembles a single statement. Joins are keyed by an alias derived
// from the joined table's role, so a table is joined at most once however
// many fields read from it. Subquery aliases come from a counter owned by
// the builder.
type builder struct {
	cfg     *Config
	d       Dialect
	joins   []string
	joined  map[string]bool
	args    []interface{}
	aliases int
}

// Build assembles the SELECT for cfg restricted to w. cfg must have been
// validated.
func Build(cfg *Config, w source.Window) Query {
	b := &builder{cfg: cfg, d: cfg.Dialect, joined: map[string]bool{}}

	pk := b.base(cfg.PrimaryKey)
	cols := []string{pk + " AS " + cfg.PrimaryKey}
	for _, f := range cfg.Fields {
		if f.Name == cfg.PrimaryKey {
			continue
		}
		cols = append(cols, b.selectExpr(f)+" AS "+f.Name)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM " + cfg.Table + " " + cfg.Alias)
	for _, j := range b.joins {
		sb.WriteString(" " + j)
	}
	if where := b.where(w); len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" GROUP BY " + pk)
	sb.WriteString(" ORDER BY " + strings.Join(b.orderBy(), ", "))
	if len(w.IDs) == 0 {
		if tail := b.d.Paginate(w.Limit, w.Offset); tail != "" {
			sb.WriteString(" " + tail)
		}
	}
	return Query{SQL: sb.String(), Args: b.args}
}

func (b *builder) base(col string) string {
	return b.cfg.Alias + "." + col
}

func (b *builder) arg(v interface{}) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

func (b *builder) placeholders(values []string) string {
	ph := make([]string, len(values))
	for i, v := range values {
		ph[i] = b.arg(v)
	}
	return strings.Join(ph, ", ")
}

func (b *builder) nextAlias(prefix string) string {
	b.aliases++
	return prefix + strconv.Itoa(b.aliases)
}

// join adds clause under alias unless that alias is already joined.
func (b *builder) join(alias, clause string) string {
	if !b.joined[alias] {
		b.joined[alias] = true
		b.joins = append(b.joins, clause)
	}
	return alias
}

func (b *builder) revisionJoin() string {
	c := b.cfg
	return b.join("rev", "LEFT JOIN "+c.RevisionTable+" rev ON rev."+c.RevisionKey+" = "+b.base(c.RevisionKey))
}

func (b *builder) contentTypeJoin(contentType string) string {
	c := b.cfg
	alias := "ct_" + unsafeAlias.ReplaceAllString(contentType, "_")
	return b.join(alias, "LEFT JOIN "+c.ContentTypePrefix+contentType+" "+alias+
		" ON "+alias+"."+c.JoinKey+" = "+b.base(c.JoinKey))
}

func (b *builder) fieldJoin(field string) string {
	c := b.cfg
	alias := "fd_" + field
	return b.join(alias, "LEFT JOIN "+c.FieldTablePrefix+field+" "+alias+
		" ON "+alias+"."+c.JoinKey+" = "+b.base(c.JoinKey))
}

func (b *builder) fileJoin(f Field) string {
	c := b.cfg
	idExpr := b.base(f.Column)
	from := "base"
	if f.FromField != "" {
		idExpr = b.fieldJoin(f.FromField) + "." + f.Column
		from = f.FromField
	}
	alias := "file_" + unsafeAlias.ReplaceAllString(from+"_"+f.Column, "_")
	return b.join(alias, "LEFT JOIN "+c.FileTable+" "+alias+" ON "+alias+"."+c.FileKey+" = "+idExpr)
}

// selectExpr renders the column expression of f, aggregated when asked for
// or when the dialect needs it.
func (b *builder) selectExpr(f Field) string {
	c := b.cfg
	var expr string
	switch f.Type {
	case Column:
		expr = b.base(f.Column)
	case Revision:
		expr = b.revisionJoin() + "." + f.Column
	case ContentType:
		expr = b.contentTypeJoin(f.ContentType) + "." + f.Column
	case FieldTable:
		expr = b.fieldJoin(f.Column) + "." + f.ValueColumn
	case File:
		path := b.fileJoin(f) + "." + c.FilePathColumn
		if c.FileURLPrefix != "" {
			path = b.d.Concat(quote(c.FileURLPrefix), path)
		}
		expr = path
	case Term:
		return b.termSubquery(f)
	case Subquery:
		return b.subquery(f)
	case Expression:
		return "(" + f.Expression + ")"
	}

	if f.Aggregate {
		return b.d.Aggregate(expr, f.Separator)
	}
	if b.d.StrictGrouping() && f.Type != Column {
		return "MIN(" + expr + ")"
	}
	return expr
}

func (b *builder) termSubquery(f Field) string {
	c := b.cfg
	tn := b.nextAlias("tn")
	td := b.nextAlias("td")
	var sb strings.Builder
	sb.WriteString("(SELECT " + b.d.Aggregate(td+"."+c.TermNameColumn, f.Separator))
	sb.WriteString(" FROM " + c.TermNodeTable + " " + tn)
	sb.WriteString(" INNER JOIN " + c.TermDataTable + " " + td + " ON " + td + "." + c.TermKey + " = " + tn + "." + c.TermKey)
	sb.WriteString(" WHERE " + tn + "." + c.TermNodeKey + " = " + b.base(c.JoinKey))
	if f.Vocabulary != "" {
		sb.WriteString(" AND " + td + "." + c.TermVocabColumn + " = " + b.arg(f.Vocabulary))
	}
	sb.WriteString(")")
	return sb.String()
}

func (b *builder) subquery(f Field) string {
	sq := b.nextAlias("sq")
	col := sq + "." + f.Column
	if f.Aggregate {
		col = b.d.Aggregate(col, f.Separator)
	} else {
		col = "MIN(" + col + ")"
	}
	return "(SELECT " + col + " FROM " + f.Table + " " + sq +
		" WHERE " + sq + "." + f.Key + " = " + b.base(b.cfg.PrimaryKey) + ")"
}

func (b *builder) where(w source.Window) []string {
	c := b.cfg
	var conds []string
	if len(c.Types) > 0 {
		conds = append(conds, b.base(c.TypeColumn)+" IN ("+b.placeholders(c.Types)+")")
	}
	if len(c.Status) > 0 {
		conds = append(conds, b.base(c.StatusColumn)+" IN ("+b.placeholders(c.Status)+")")
	}
	if len(w.IDs) > 0 {
		conds = append(conds, b.base(c.PrimaryKey)+" IN ("+b.placeholders(w.IDs)+")")
	}
	if c.Where != "" {
		conds = append(conds, "("+c.Where+")")
	}
	return conds
}

func (b *builder) orderBy() []string {
	if len(b.cfg.OrderBy) == 0 {
		return []string{b.base(b.cfg.PrimaryKey)}
	}
	// the primary key breaks ties so windows over equal sort values are stable
	pk := b.base(b.cfg.PrimaryKey)
	hasPK := false
	out := make([]string, 0, len(b.cfg.OrderBy)+1)
	for _, o := range b.cfg.OrderBy {
		if !strings.Contains(o, ".") {
			o = b.base(o)
		}
		if col, _, _ := strings.Cut(o, " "); col == pk {
			hasPK = true
		}
		out = append(out, o)
	}
	if !hasPK {
		out = append(out, pk)
	}
	return out
}
