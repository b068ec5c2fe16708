package keymap

import (
	"context"
	"testing"

	"github.com/BartekS5/cmigrate/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldMapFallsBackToRecordField(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	// written by an earlier run
	require.NoError(t, s.SetField(ctx, "501", "_legacy_id", "X"))

	m := NewFieldMap(s, "_legacy_id", Immediate)
	require.NoError(t, m.Init(ctx))

	d, ok, err := m.DestinationKey(ctx, "X")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "501", d)

	src, ok, err := m.SourceKey(ctx, "501")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "X", src)
}

func TestFieldMapSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	run1 := NewFieldMap(s, "_legacy_id", Immediate, WithFieldPrefix("drupal:"))
	require.NoError(t, run1.Init(ctx))
	require.NoError(t, run1.Save(ctx, "7", "d7"))

	run2 := NewFieldMap(s, "_legacy_id", Immediate, WithFieldPrefix("drupal:"), WithIndexSize(1))
	require.NoError(t, run2.Init(ctx))
	d, ok, err := run2.DestinationKey(ctx, "7")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "d7", d)

	v, _, err := s.GetField(ctx, "d7", "_legacy_id")
	require.NoError(t, err)
	assert.Equal(t, "drupal:7", v)
}

func TestFieldMapDeferredHoldsUntilFlush(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	m := NewFieldMap(s, "_legacy_id", Deferred, WithIndexSize(1))
	require.NoError(t, m.Init(ctx))
	require.NoError(t, m.Save(ctx, "A", "d1"))
	require.NoError(t, m.Save(ctx, "B", "d2"))

	_, ok, err := s.GetField(ctx, "d1", "_legacy_id")
	require.NoError(t, err)
	assert.False(t, ok)

	// evicted from the index but still pending
	d, ok, err := m.DestinationKey(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "d1", d)

	require.NoError(t, m.Flush(ctx))
	v, ok, err := s.GetField(ctx, "d1", "_legacy_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "A", v)
}

func TestFieldMapPreload(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.SetField(ctx, "d1", "_legacy_id", "A"))

	m := NewFieldMap(s, "_legacy_id", Immediate, WithPreload())
	require.NoError(t, m.Init(ctx))
	d, ok := m.forward.Get("A")
	assert.True(t, ok)
	assert.Equal(t, "d1", d)
}

func TestURLFieldMapNormalizesToPath(t *testing.T) {
	ctx := context.Background()
	m := NewURLFieldMap(store.NewMemory(), "_legacy_url", Immediate)
	require.NoError(t, m.Init(ctx))
	require.NoError(t, m.Save(ctx, "http://old.example.com/news/story-1/?ref=feed", "d1"))

	d, ok, err := m.DestinationKey(ctx, "https://www.example.com/news/story-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "d1", d)

	src, ok, err := m.SourceKey(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/news/story-1", src)
}

func TestURLPath(t *testing.T) {
	cases := map[string]string{
		"http://example.com":         "/",
		"http://example.com/a/b/":    "/a/b",
		"/a/b?x=1":                   "/a/b",
		"42":                         "42",
		"https://example.com/a#frag": "/a",
	}
	for in, want := range cases {
		assert.Equal(t, want, URLPath(in), in)
	}
}

func TestFieldMapResaveMovesCorrelation(t *testing.T) {
	ctx := context.Background()
	for _, mode := range []FlushMode{Immediate, Deferred} {
		t.Run(mode.String(), func(t *testing.T) {
			s := store.NewMemory()
			run1 := NewFieldMap(s, "_legacy_id", mode)
			require.NoError(t, run1.Init(ctx))
			require.NoError(t, run1.Save(ctx, "1", "d1"))
			require.NoError(t, run1.Flush(ctx))

			// a forced re-import lands on a new record
			run2 := NewFieldMap(s, "_legacy_id", mode)
			require.NoError(t, run2.Init(ctx))
			require.NoError(t, run2.Save(ctx, "1", "d2"))
			require.NoError(t, run2.Flush(ctx))

			_, ok, err := s.GetField(ctx, "d1", "_legacy_id")
			require.NoError(t, err)
			assert.False(t, ok)

			run3 := NewFieldMap(s, "_legacy_id", mode)
			require.NoError(t, run3.Init(ctx))
			d, ok, err := run3.DestinationKey(ctx, "1")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "d2", d)

			_, ok, err = run3.SourceKey(ctx, "d1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}
