package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MetaField is the sub-document destination records carry their
// correspondence fields in.
const MetaField = "migrationMeta"

// MongoBlobStore keeps blobs as {_id: name, value: string} documents.
type MongoBlobStore struct {
	Coll *mongo.Collection
}

func NewMongoBlobStore(db *mongo.Database, collection string) *MongoBlobStore {
	return &MongoBlobStore{Coll: db.Collection(collection)}
}

type blobDoc struct {
	Name  string `bson:"_id"`
	Value string `bson:"value"`
}

func (s *MongoBlobStore) GetBlob(ctx context.Context, name string) ([]byte, bool, error) {
	var doc blobDoc
	err := s.Coll.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read blob %s: %w", name, err)
	}
	return []byte(doc.Value), true, nil
}

func (s *MongoBlobStore) SetBlob(ctx context.Context, name string, value []byte) error {
	_, err := s.Coll.UpdateOne(ctx,
		bson.M{"_id": name},
		bson.M{"$set": bson.M{"value": string(value)}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("write blob %s: %w", name, err)
	}
	return nil
}

// MongoFieldStore reads and writes fields under MetaField on the documents of
// a destination collection.
type MongoFieldStore struct {
	Coll *mongo.Collection
}

func NewMongoFieldStore(db *mongo.Database, collection string) *MongoFieldStore {
	return &MongoFieldStore{Coll: db.Collection(collection)}
}

// recordKey turns a hex record id back into an ObjectID; other ids are used
// as they are.
func recordKey(recordID string) interface{} {
	if oid, err := primitive.ObjectIDFromHex(recordID); err == nil {
		return oid
	}
	return recordID
}

func recordIDString(v interface{}) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	default:
		return fmt.Sprintf("%v", id)
	}
}

type metaDoc struct {
	ID   interface{}       `bson:"_id"`
	Meta map[string]string `bson:"migrationMeta"`
}

func (s *MongoFieldStore) GetField(ctx context.Context, recordID, field string) (string, bool, error) {
	var doc metaDoc
	opts := options.FindOne().SetProjection(bson.M{MetaField + "." + field: 1})
	err := s.Coll.FindOne(ctx, bson.M{"_id": recordKey(recordID)}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read field %s of %s: %w", field, recordID, err)
	}
	v, ok := doc.Meta[field]
	return v, ok, nil
}

func (s *MongoFieldStore) SetField(ctx context.Context, recordID, field, value string) error {
	res, err := s.Coll.UpdateOne(ctx,
		bson.M{"_id": recordKey(recordID)},
		bson.M{"$set": bson.M{MetaField + "." + field: value}},
	)
	if err != nil {
		return fmt.Errorf("write field %s of %s: %w", field, recordID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("write field %s: record %s not found", field, recordID)
	}
	return nil
}

func (s *MongoFieldStore) ClearField(ctx context.Context, recordID, field string) error {
	_, err := s.Coll.UpdateOne(ctx,
		bson.M{"_id": recordKey(recordID)},
		bson.M{"$unset": bson.M{MetaField + "." + field: ""}},
	)
	if err != nil {
		return fmt.Errorf("clear field %s of %s: %w", field, recordID, err)
	}
	return nil
}

func (s *MongoFieldStore) FindByField(ctx context.Context, field, value string) (string, bool, error) {
	var doc metaDoc
	opts := options.FindOne().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.M{"_id": 1})
	err := s.Coll.FindOne(ctx, bson.M{MetaField + "." + field: value}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find by field %s: %w", field, err)
	}
	return recordIDString(doc.ID), true, nil
}

func (s *MongoFieldStore) ScanField(ctx context.Context, field string, fn func(recordID, value string) error) error {
	path := MetaField + "." + field
	opts := options.Find().
		SetProjection(bson.M{path: 1}).
		SetSort(bson.M{"_id": 1})
	cursor, err := s.Coll.Find(ctx, bson.M{path: bson.M{"$exists": true}}, opts)
	if err != nil {
		return fmt.Errorf("scan field %s: %w", field, err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc metaDoc
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("scan field %s: %w", field, err)
		}
		if err := fn(recordIDString(doc.ID), doc.Meta[field]); err != nil {
			return err
		}
	}
	return cursor.Err()
}

func (s *MongoFieldStore) Ping(ctx context.Context) error {
	return s.Coll.Database().Client().Ping(ctx, readpref.Primary())
}
