package collection

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/BartekS5/cmigrate/internal/source"
	"github.com/BartekS5/cmigrate/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestQueryWindow(t *testing.T) {
	cfg := Config{Collection: "posts", KeyField: "_id"}

	filter, opts := Query(cfg, bson.M{"status": "published"}, source.Window{Offset: 20, Limit: 10})
	assert.Equal(t, bson.M{"status": "published"}, filter)
	require.NotNil(t, opts.Skip)
	require.NotNil(t, opts.Limit)
	assert.Equal(t, int64(20), *opts.Skip)
	assert.Equal(t, int64(10), *opts.Limit)
	assert.Equal(t, bson.D{{Key: "_id", Value: 1}}, opts.Sort)
}

func TestQueryIDsIgnorePaging(t *testing.T) {
	oid := primitive.NewObjectID()
	cfg := Config{Collection: "posts", KeyField: "_id"}

	filter, opts := Query(cfg, nil, source.Window{IDs: []string{oid.Hex(), "legacy-7"}, Limit: 1, Offset: 4})
	assert.Equal(t, bson.M{"_id": bson.M{"$in": []interface{}{oid, "legacy-7"}}}, filter)
	assert.Nil(t, opts.Skip)
	assert.Nil(t, opts.Limit)
}

func TestNormalize(t *testing.T) {
	oid := primitive.NewObjectID()
	when := time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := normalize(bson.M{
		"_id":     oid,
		"created": primitive.NewDateTimeFromTime(when),
		"author":  bson.M{"_id": oid, "name": "ann"},
		"tags":    primitive.A{"a", "b"},
	})
	assert.Equal(t, oid.Hex(), rec["_id"])
	assert.Equal(t, when, rec["created"])
	assert.Equal(t, source.Record{"_id": oid.Hex(), "name": "ann"}, rec["author"])
	assert.Equal(t, []interface{}{"a", "b"}, rec["tags"])
}

func TestConfigFromOptions(t *testing.T) {
	cfg, err := ConfigFromOptions(map[string]interface{}{"collection": "posts", "filter": `{"status": "published"}`})
	require.NoError(t, err)
	assert.Equal(t, "_id", cfg.KeyField)

	_, err = ConfigFromOptions(map[string]interface{}{})
	require.Error(t, err)
}

func TestCollectionSourceIntegration(t *testing.T) {
	uri := os.Getenv("MONGO_CONNECTION_STRING")
	if uri == "" {
		t.Skip("MONGO_CONNECTION_STRING not set")
	}
	ctx := context.Background()
	client, err := database.ConnectMongo(ctx, uri)
	require.NoError(t, err)
	defer client.Disconnect(ctx)

	db := client.Database("cmigrate_collection_test")
	defer db.Drop(ctx)
	for i := 0; i < 5; i++ {
		_, err := db.Collection("posts").InsertOne(ctx, bson.M{"_id": i, "status": "published"})
		require.NoError(t, err)
	}

	src, err := New(db, Config{Collection: "posts", Filter: `{"status": "published"}`}, nil)
	require.NoError(t, err)
	n, err := src.Init(ctx, source.Window{Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"1", "2"}, src.Keys("_id"))
}
