// Package store holds the persistence capabilities the correspondence maps
// are built on: named blobs and named fields attached to destination records.
package store

import "context"

// BlobStore keeps opaque values under a string name.
type BlobStore interface {
	GetBlob(ctx context.Context, name string) ([]byte, bool, error)
	SetBlob(ctx context.Context, name string, value []byte) error
}

// RecordFieldStore reads and writes a named field on individual destination
// records.
type RecordFieldStore interface {
	GetField(ctx context.Context, recordID, field string) (string, bool, error)
	SetField(ctx context.Context, recordID, field, value string) error
	// ClearField removes field from recordID. A missing record or field is
	// not an error.
	ClearField(ctx context.Context, recordID, field string) error
	// FindByField returns the first record whose field equals value.
	FindByField(ctx context.Context, field, value string) (string, bool, error)
}

// FieldScanner is implemented by stores that can enumerate every record
// carrying field.
type FieldScanner interface {
	ScanField(ctx context.Context, field string, fn func(recordID, value string) error) error
}

// Pinger is implemented by stores that can check they are reachable without
// reading data.
type Pinger interface {
	Ping(ctx context.Context) error
}
