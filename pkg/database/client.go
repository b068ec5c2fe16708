package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Row is one result row keyed by column name.
type Row map[string]interface{}

// Client runs a query and returns the rows in result order.
type Client interface {
	Query(ctx context.Context, query string, args ...interface{}) ([]Row, error)
}

// SQLClient adapts *sql.DB to Client.
type SQLClient struct {
	DB *sql.DB
}

func NewSQLClient(db *sql.DB) *SQLClient {
	return &SQLClient{DB: db}
}

func (c *SQLClient) Query(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return ScanRows(rows)
}

// ScanRows materializes rows into Row maps. []byte values become strings.
func ScanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []Row
	for rows.Next() {
		columns := make([]interface{}, len(cols))
		columnPointers := make([]interface{}, len(cols))
		for i := range columns {
			columnPointers[i] = &columns[i]
		}
		if err := rows.Scan(columnPointers...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		m := make(Row, len(cols))
		for i, colName := range cols {
			if b, ok := columns[i].([]byte); ok {
				m[colName] = string(b)
			} else {
				m[colName] = columns[i]
			}
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
