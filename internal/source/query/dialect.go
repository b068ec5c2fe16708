package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect covers the SQL differences between the supported legacy databases.
type Dialect interface {
	Name() string
	Placeholder(n int) string
	// Aggregate collapses expr over the grouped rows into one string.
	Aggregate(expr, separator string) string
	Concat(parts ...string) string
	// Paginate renders the LIMIT/OFFSET tail. limit <= 0 means unbounded.
	Paginate(limit, offset int) string
	// StrictGrouping reports whether columns outside GROUP BY must be
	// aggregated.
	StrictGrouping() bool
}

// DialectByName returns "mysql", "postgres" or "sqlserver".
func DialectByName(name string) (Dialect, error) {
	switch name {
	case "", "mysql":
		return MySQL{}, nil
	case "postgres":
		return Postgres{}, nil
	case "sqlserver":
		return SQLServer{}, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) Placeholder(int) string { return "?" }

func (MySQL) Aggregate(expr, separator string) string {
	return "GROUP_CONCAT(DISTINCT " + expr + " SEPARATOR " + quote(separator) + ")"
}

func (MySQL) Concat(parts ...string) string {
	return "CONCAT(" + strings.Join(parts, ", ") + ")"
}

func (MySQL) Paginate(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return "LIMIT " + strconv.Itoa(limit) + " OFFSET " + strconv.Itoa(offset)
	case limit > 0:
		return "LIMIT " + strconv.Itoa(limit)
	case offset > 0:
		// MySQL has no OFFSET without LIMIT
		return "LIMIT 18446744073709551615 OFFSET " + strconv.Itoa(offset)
	}
	return ""
}

func (MySQL) StrictGrouping() bool { return false }

type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) Aggregate(expr, separator string) string {
	return "string_agg(DISTINCT CAST(" + expr + " AS TEXT), " + quote(separator) + ")"
}

func (Postgres) Concat(parts ...string) string {
	return "(" + strings.Join(parts, " || ") + ")"
}

func (Postgres) Paginate(limit, offset int) string {
	var parts []string
	if limit > 0 {
		parts = append(parts, "LIMIT "+strconv.Itoa(limit))
	}
	if offset > 0 {
		parts = append(parts, "OFFSET "+strconv.Itoa(offset))
	}
	return strings.Join(parts, " ")
}

func (Postgres) StrictGrouping() bool { return true }

type SQLServer struct{}

func (SQLServer) Name() string { return "sqlserver" }

func (SQLServer) Placeholder(n int) string { return "@p" + strconv.Itoa(n) }

func (SQLServer) Aggregate(expr, separator string) string {
	return "STRING_AGG(CAST(" + expr + " AS NVARCHAR(MAX)), " + quote(separator) + ")"
}

func (SQLServer) Concat(parts ...string) string {
	return "CONCAT(" + strings.Join(parts, ", ") + ")"
}

// Paginate needs the ORDER BY the builder always emits.
func (SQLServer) Paginate(limit, offset int) string {
	if limit <= 0 && offset <= 0 {
		return ""
	}
	out := "OFFSET " + strconv.Itoa(offset) + " ROWS"
	if limit > 0 {
		out += " FETCH NEXT " + strconv.Itoa(limit) + " ROWS ONLY"
	}
	return out
}

func (SQLServer) StrictGrouping() bool { return true }
