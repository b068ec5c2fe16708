package keymap

import (
	"context"
	"errors"
	"testing"

	"github.com/BartekS5/cmigrate/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBlobs wraps a Memory store and counts blob writes.
type countingBlobs struct {
	*store.Memory
	sets int
}

func (c *countingBlobs) SetBlob(ctx context.Context, name string, value []byte) error {
	c.sets++
	return c.Memory.SetBlob(ctx, name, value)
}

func newMaps(t *testing.T) map[string]Map {
	t.Helper()
	return map[string]Map{
		"blob":  NewBlobMap(store.NewMemory(), "posts_map", Deferred),
		"field": NewFieldMap(store.NewMemory(), "_legacy_id", Immediate),
	}
}

func TestCorrespondenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, m := range newMaps(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, m.Init(ctx))
			require.NoError(t, m.Save(ctx, "A", "1"))
			require.NoError(t, m.Save(ctx, "B", "2"))

			d, ok, err := m.DestinationKey(ctx, "A")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "1", d)

			s, ok, err := m.SourceKey(ctx, "2")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "B", s)

			_, ok, err = m.DestinationKey(ctx, "C")
			require.NoError(t, err)
			assert.False(t, ok)

			n, err := m.CountDestinationKeys(ctx, []string{"A", "B", "C"})
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

func TestInitTwiceAndUseBeforeInit(t *testing.T) {
	ctx := context.Background()
	for name, m := range newMaps(t) {
		t.Run(name, func(t *testing.T) {
			assert.False(t, m.Initialized())
			assert.ErrorIs(t, m.Save(ctx, "A", "1"), ErrNotInitialized)
			require.NoError(t, m.Init(ctx))
			assert.True(t, m.Initialized())
			assert.ErrorIs(t, m.Init(ctx), ErrAlreadyInitialized)
		})
	}
}

func TestInitFailsWhenStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	down := store.NewMemory()
	down.Err = errors.New("connection refused")

	err := NewBlobMap(down, "posts_map", Deferred).Init(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	err = NewFieldMap(down, "_legacy_id", Immediate).Init(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestBlobMapCorruptBlobIsFatal(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.SetBlob(ctx, "posts_map", []byte("{not json")))
	assert.ErrorIs(t, NewBlobMap(s, "posts_map", Deferred).Init(ctx), ErrStoreUnavailable)
}

func TestBlobMapPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	first := NewBlobMap(s, "posts_map", Immediate, WithPrefix("feedA:"), WithTenant("3"))
	require.NoError(t, first.Init(ctx))
	require.NoError(t, first.Save(ctx, "10", "d10"))

	_, ok, err := s.GetBlob(ctx, "tenant_3_posts_map")
	require.NoError(t, err)
	require.True(t, ok)

	second := NewBlobMap(s, "posts_map", Immediate, WithPrefix("feedA:"), WithTenant("3"))
	require.NoError(t, second.Init(ctx))
	d, ok, err := second.DestinationKey(ctx, "10")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "d10", d)

	other := NewBlobMap(s, "posts_map", Immediate, WithPrefix("feedB:"), WithTenant("3"))
	require.NoError(t, other.Init(ctx))
	_, ok, err = other.DestinationKey(ctx, "10")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBlobMapReverseLookupReturnsFirstMatch(t *testing.T) {
	ctx := context.Background()
	m := NewBlobMap(store.NewMemory(), "m", Deferred)
	require.NoError(t, m.Init(ctx))
	require.NoError(t, m.Save(ctx, "first", "1"))
	require.NoError(t, m.Save(ctx, "second", "1"))

	s, ok, err := m.SourceKey(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "first", s)
}

func TestTenantKey(t *testing.T) {
	assert.Equal(t, "m", TenantKey("", "m"))
	assert.Equal(t, "m", TenantKey("1", "m"))
	assert.Equal(t, "tenant_7_m", TenantKey("7", "m"))
}

func TestUseFlushesDeferredOnceOnError(t *testing.T) {
	ctx := context.Background()
	blobs := &countingBlobs{Memory: store.NewMemory()}
	m := NewBlobMap(blobs, "m", Deferred)

	boom := errors.New("boom")
	err := Use(ctx, m, func(m Map) error {
		require.NoError(t, m.Save(ctx, "A", "1"))
		require.NoError(t, m.Save(ctx, "B", "2"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, blobs.sets)

	reloaded := NewBlobMap(blobs.Memory, "m", Deferred)
	require.NoError(t, reloaded.Init(ctx))
	assert.Equal(t, 2, reloaded.Len())
}

func TestUseFlushesOnPanic(t *testing.T) {
	ctx := context.Background()
	blobs := &countingBlobs{Memory: store.NewMemory()}
	m := NewBlobMap(blobs, "m", Deferred)

	assert.Panics(t, func() {
		_ = Use(ctx, m, func(m Map) error {
			_ = m.Save(ctx, "A", "1")
			panic("unexpected")
		})
	})
	assert.Equal(t, 1, blobs.sets)
}

func TestUseFlushesAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := store.NewMemory()
	m := NewFieldMap(s, "_legacy_id", Deferred)

	err := Use(ctx, m, func(m Map) error {
		require.NoError(t, m.Save(ctx, "A", "d1"))
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)

	v, ok, err := s.GetField(context.Background(), "d1", "_legacy_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "A", v)
}

func TestParseFlushMode(t *testing.T) {
	m, err := ParseFlushMode("deferred")
	require.NoError(t, err)
	assert.Equal(t, Deferred, m)

	_, err = ParseFlushMode("")
	assert.Error(t, err)
}
