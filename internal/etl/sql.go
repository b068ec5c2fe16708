package etl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SQLLoader inserts and updates rows of one table. The way a new key comes
// back depends on the dialect: RETURNING on postgres, OUTPUT on sqlserver
// and LastInsertId on mysql.
type SQLLoader struct {
	DB       *sql.DB
	Dialect  string
	Table    string
	IDColumn string
}

func NewSQLLoader(db *sql.DB, dialect, table, idColumn string) (*SQLLoader, error) {
	switch dialect {
	case "postgres", "sqlserver", "mysql":
	default:
		return nil, fmt.Errorf("sql loader: unknown dialect %q", dialect)
	}
	if table == "" {
		return nil, errors.New("sql loader: table is required")
	}
	if idColumn == "" {
		idColumn = "id"
	}
	return &SQLLoader{DB: db, Dialect: dialect, Table: table, IDColumn: idColumn}, nil
}

func (l *SQLLoader) placeholder(n int) string {
	switch l.Dialect {
	case "postgres":
		return "$" + strconv.Itoa(n)
	case "sqlserver":
		return "@p" + strconv.Itoa(n)
	default:
		return "?"
	}
}

func columns(doc Document) []string {
	cols := make([]string, 0, len(doc))
	for col := range doc {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// InsertQuery renders the INSERT for the columns of doc in sorted order.
func (l *SQLLoader) InsertQuery(doc Document) (string, []interface{}) {
	cols := columns(doc)
	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, col := range cols {
		placeholders[i] = l.placeholder(i + 1)
		args[i] = doc[col]
	}
	colList := strings.Join(cols, ", ")
	values := strings.Join(placeholders, ", ")
	switch l.Dialect {
	case "postgres":
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s", l.Table, colList, values, l.IDColumn), args
	case "sqlserver":
		return fmt.Sprintf("INSERT INTO %s (%s) OUTPUT INSERTED.%s VALUES (%s)", l.Table, colList, l.IDColumn, values), args
	default:
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", l.Table, colList, values), args
	}
}

// UpdateQuery renders the UPDATE; the key is the last argument.
func (l *SQLLoader) UpdateQuery(destKey string, doc Document) (string, []interface{}) {
	var setClauses []string
	var args []interface{}
	for _, col := range columns(doc) {
		if col == l.IDColumn {
			continue
		}
		args = append(args, doc[col])
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", col, l.placeholder(len(args))))
	}
	args = append(args, destKey)
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		l.Table, strings.Join(setClauses, ", "), l.IDColumn, l.placeholder(len(args))), args
}

func (l *SQLLoader) Insert(ctx context.Context, doc Document) (string, error) {
	if len(doc) == 0 {
		return "", errors.New("insert: empty document")
	}
	query, args := l.InsertQuery(doc)
	if l.Dialect == "mysql" {
		res, err := l.DB.ExecContext(ctx, query, args...)
		if err != nil {
			return "", fmt.Errorf("insert into %s: %w", l.Table, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return "", fmt.Errorf("insert into %s: %w", l.Table, err)
		}
		return strconv.FormatInt(id, 10), nil
	}
	var id interface{}
	if err := l.DB.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return "", fmt.Errorf("insert into %s: %w", l.Table, err)
	}
	if b, ok := id.([]byte); ok {
		return string(b), nil
	}
	return fmt.Sprint(id), nil
}

func (l *SQLLoader) Update(ctx context.Context, destKey string, doc Document) error {
	query, args := l.UpdateQuery(destKey, doc)
	if len(args) == 1 {
		return nil
	}
	res, err := l.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", l.Table, destKey, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update %s %s: no such record", l.Table, destKey)
	}
	return nil
}
