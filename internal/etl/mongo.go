package etl

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/BartekS5/cmigrate/pkg/logger"
)

// MongoLoader writes documents to one collection.
type MongoLoader struct {
	Coll *mongo.Collection
}

func NewMongoLoader(db *mongo.Database, collection string) *MongoLoader {
	return &MongoLoader{Coll: db.Collection(collection)}
}

func (m *MongoLoader) Insert(ctx context.Context, doc Document) (string, error) {
	res, err := m.Coll.InsertOne(ctx, bson.M(doc))
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", m.Coll.Name(), err)
	}
	switch id := res.InsertedID.(type) {
	case primitive.ObjectID:
		return id.Hex(), nil
	default:
		return fmt.Sprint(id), nil
	}
}

func (m *MongoLoader) Update(ctx context.Context, destKey string, doc Document) error {
	var filter bson.M
	if oid, err := primitive.ObjectIDFromHex(destKey); err == nil {
		filter = bson.M{"_id": oid}
	} else {
		filter = bson.M{"_id": destKey}
	}
	set := bson.M{}
	for k, v := range doc {
		if k != "_id" {
			set[k] = v
		}
	}
	res, err := m.Coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update %s %s: %w", m.Coll.Name(), destKey, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update %s %s: no such record", m.Coll.Name(), destKey)
	}
	logger.Debugf("mongo update %s %s: modified %d", m.Coll.Name(), destKey, res.ModifiedCount)
	return nil
}
