package etl

import "context"

// Document is a destination record keyed by destination field name.
type Document map[string]interface{}

// Loader writes destination records. Insert returns the key of the new
// record, rendered as a string.
type Loader interface {
	Insert(ctx context.Context, doc Document) (string, error)
	Update(ctx context.Context, destKey string, doc Document) error
}
