package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/cmigrate/internal/source"
	"github.com/BartekS5/cmigrate/pkg/database"
)

type fakeClient struct {
	rows  []database.Row
	err   error
	calls int
	query string
	args  []interface{}
}

func (c *fakeClient) Query(_ context.Context, query string, args ...interface{}) ([]database.Row, error) {
	c.calls++
	c.query = query
	c.args = args
	return c.rows, c.err
}

func TestSourceMaterializesRows(t *testing.T) {
	client := &fakeClient{rows: []database.Row{
		{"nid": int64(1), "title": []byte("First")},
		{"nid": int64(2), "title": "Second"},
	}}
	src, err := New(client, *storyConfig(Postgres{}), nil)
	require.NoError(t, err)

	n, err := src.Init(context.Background(), source.Window{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, src.LastQuery().SQL, client.query)
	assert.Equal(t, src.LastQuery().Args, client.args)

	require.True(t, src.Valid())
	assert.Equal(t, "First", src.Current()["title"])
	src.Next()
	assert.Equal(t, "Second", src.Current()["title"])
	src.Next()
	assert.False(t, src.Valid())

	// iteration never queries again
	src.Rewind()
	for range src.All() {
	}
	assert.Equal(t, 1, client.calls)

	src.Cleanup()
	assert.Equal(t, 0, src.Count())
}

func TestSourceQueryError(t *testing.T) {
	client := &fakeClient{err: errors.New("connection reset")}
	src, err := New(client, *storyConfig(MySQL{}), nil)
	require.NoError(t, err)

	_, err = src.Init(context.Background(), source.Window{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(&fakeClient{}, Config{Table: "node"}, nil)
	require.Error(t, err)
}
