// Package collection reads legacy records from a MongoDB collection.
package collection

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/cmigrate/internal/output"
	"github.com/BartekS5/cmigrate/internal/source"
	"github.com/BartekS5/cmigrate/pkg/utils"
)

type Config struct {
	Collection string
	// KeyField is sorted on for stable paging and matched by id windows.
	KeyField string
	// Filter is an extended JSON query document ANDed with the window.
	Filter string
}

// ConfigFromOptions builds a Config from definitions file options.
func ConfigFromOptions(raw map[string]interface{}) (Config, error) {
	c := Config{KeyField: "_id"}
	opts := utils.NewOptions(raw).
		RequiredString("collection", &c.Collection).
		String("keyField", &c.KeyField).
		String("filter", &c.Filter)
	if err := opts.Err(); err != nil {
		return Config{}, err
	}
	return c, nil
}

type Source struct {
	source.Set

	coll     *mongo.Collection
	cfg      Config
	filter   bson.M
	reporter *output.Reporter
}

func New(db *mongo.Database, cfg Config, reporter *output.Reporter) (*Source, error) {
	if cfg.Collection == "" {
		return nil, errors.New("collection source: collection is required")
	}
	if cfg.KeyField == "" {
		cfg.KeyField = "_id"
	}
	filter := bson.M{}
	if cfg.Filter != "" {
		if err := bson.UnmarshalExtJSON([]byte(cfg.Filter), false, &filter); err != nil {
			return nil, fmt.Errorf("collection source: filter: %w", err)
		}
	}
	if reporter == nil {
		reporter = output.Discard()
	}
	return &Source{coll: db.Collection(cfg.Collection), cfg: cfg, filter: filter, reporter: reporter}, nil
}

// Query is the find filter and options used for w.
func Query(cfg Config, base bson.M, w source.Window) (bson.M, *options.FindOptions) {
	filter := bson.M{}
	for k, v := range base {
		filter[k] = v
	}
	findOpts := options.Find().SetSort(bson.D{{Key: cfg.KeyField, Value: 1}})
	if len(w.IDs) > 0 {
		ids := make([]interface{}, 0, len(w.IDs))
		for _, id := range w.IDs {
			ids = append(ids, keyValue(cfg.KeyField, id))
		}
		filter[cfg.KeyField] = bson.M{"$in": ids}
		return filter, findOpts
	}
	if w.Offset > 0 {
		findOpts.SetSkip(int64(w.Offset))
	}
	if w.Limit > 0 {
		findOpts.SetLimit(int64(w.Limit))
	}
	return filter, findOpts
}

// keyValue turns hex ids back into ObjectIDs when matching _id.
func keyValue(field, id string) interface{} {
	if field == "_id" {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			return oid
		}
	}
	return id
}

func (s *Source) Init(ctx context.Context, w source.Window) (int, error) {
	filter, findOpts := Query(s.cfg, s.filter, w)
	cursor, err := s.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return 0, fmt.Errorf("find %s: %w", s.cfg.Collection, err)
	}
	defer cursor.Close(ctx)

	var records []source.Record
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			s.reporter.Error("%s: decode document: %v", s.cfg.Collection, err)
			continue
		}
		records = append(records, normalize(doc))
	}
	if err := cursor.Err(); err != nil {
		return 0, fmt.Errorf("read %s: %w", s.cfg.Collection, err)
	}
	s.Load(records)
	return len(records), nil
}

// normalize converts driver types into plain record values.
func normalize(doc bson.M) source.Record {
	rec := make(source.Record, len(doc))
	for k, v := range doc {
		rec[k] = value(v)
	}
	return rec
}

func value(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case bson.M:
		return normalize(t)
	case primitive.A:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = value(item)
		}
		return out
	default:
		return v
	}
}
