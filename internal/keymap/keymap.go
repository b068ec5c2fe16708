// Package keymap correlates source system keys with the destination keys
// they produced so repeated runs update instead of duplicating records.
//
// A Map is owned by one migration process at a time. Running the same type
// against the same destination from two processes is unsupported.
package keymap

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotInitialized     = errors.New("keymap: not initialized")
	ErrAlreadyInitialized = errors.New("keymap: already initialized")
	// ErrStoreUnavailable marks an Init that could not read the backing store.
	// Proceeding would re-import records that were already migrated.
	ErrStoreUnavailable = errors.New("keymap: backing store unavailable")
)

// FlushMode selects when saves reach durable storage.
type FlushMode int

const (
	// Immediate writes every Save synchronously.
	Immediate FlushMode = iota
	// Deferred keeps saves in memory until Flush. Correlations saved since the
	// last Flush are lost if the process dies, so callers must flush on every
	// exit path (see Use).
	Deferred
)

func (m FlushMode) String() string {
	if m == Deferred {
		return "deferred"
	}
	return "immediate"
}

// ParseFlushMode accepts "immediate" or "deferred". An empty string is an
// error: the mode is a reliability decision and has to be named.
func ParseFlushMode(s string) (FlushMode, error) {
	switch s {
	case "immediate":
		return Immediate, nil
	case "deferred":
		return Deferred, nil
	default:
		return Immediate, fmt.Errorf("keymap: unknown flush mode %q", s)
	}
}

// Map is a key correspondence store.
type Map interface {
	Init(ctx context.Context) error
	Initialized() bool
	Save(ctx context.Context, sourceKey, destKey string) error
	// DestinationKey returns ("", false, nil) on a miss.
	DestinationKey(ctx context.Context, sourceKey string) (string, bool, error)
	// SourceKey returns the first source key correlated with destKey.
	SourceKey(ctx context.Context, destKey string) (string, bool, error)
	CountDestinationKeys(ctx context.Context, sourceKeys []string) (int, error)
	Flush(ctx context.Context) error
	Mode() FlushMode
}

// Use initializes m, runs fn and flushes m on every way out of fn,
// including a panic, which is re-raised after the flush.
func Use(ctx context.Context, m Map, fn func(Map) error) (err error) {
	if !m.Initialized() {
		if err := m.Init(ctx); err != nil {
			return err
		}
	}
	defer func() {
		// flush with a context that survives cancellation of ctx
		flushErr := m.Flush(context.WithoutCancel(ctx))
		if r := recover(); r != nil {
			panic(r)
		}
		if flushErr != nil {
			err = errors.Join(err, fmt.Errorf("flush keymap: %w", flushErr))
		}
	}()
	return fn(m)
}
