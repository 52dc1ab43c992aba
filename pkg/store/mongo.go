// Package store implements the generic document store contract the
// engines run against: Mongo in production, an in-memory fake in tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/joselopes-lab/brokerdesk/pkg/domain"
)

const connectTimeout = 10 * time.Second

// MongoStore implements domain.DocumentStore on a Mongo database.
// BatchWrite runs inside a multi-document transaction, so the deployment
// must be a replica set (standalone Mongo rejects transactions).
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to Mongo and pings it before returning.
func NewMongoStore(uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed connecting to mongodb: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed pinging mongodb: %w", err)
	}

	return &MongoStore{client: client, db: client.Database(dbName)}, nil
}

// Ping checks the connection, for health endpoints.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Get reads one document by id into dest.
func (s *MongoStore) Get(ctx context.Context, collection, id string, dest any) error {
	err := s.db.Collection(collection).
		FindOne(ctx, bson.D{{Key: "_id", Value: id}}).
		Decode(dest)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrDocumentNotFound
	}
	return err
}

// Query reads all documents matching the filters into dest, which must
// be a pointer to a slice.
func (s *MongoStore) Query(ctx context.Context, collection string, filters []domain.Filter, dest any) error {
	cursor, err := s.db.Collection(collection).Find(ctx, toBSONFilter(filters))
	if err != nil {
		return err
	}
	return cursor.All(ctx, dest)
}

// CountDocuments counts matching documents server-side.
func (s *MongoStore) CountDocuments(ctx context.Context, collection string, filters []domain.Filter) (int64, error) {
	return s.db.Collection(collection).CountDocuments(ctx, toBSONFilter(filters))
}

// BatchWrite applies every write inside one transaction. A failed insert
// (duplicate id) or an unmatched update precondition aborts the whole
// batch.
func (s *MongoStore) BatchWrite(ctx context.Context, writes []domain.Write) error {
	if len(writes) == 0 {
		return nil
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed starting session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		for _, w := range writes {
			if err := s.applyWrite(ctx, w); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (s *MongoStore) applyWrite(ctx context.Context, w domain.Write) error {
	coll := s.db.Collection(w.Collection)
	idFilter := bson.D{{Key: "_id", Value: w.ID}}

	switch w.Kind {
	case domain.WriteInsert:
		doc, err := withID(w.Doc, w.ID)
		if err != nil {
			return err
		}
		if _, err := coll.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return domain.ErrDuplicateID
			}
			return err
		}
	case domain.WritePut:
		doc, err := withID(w.Doc, w.ID)
		if err != nil {
			return err
		}
		opts := options.Replace().SetUpsert(true)
		if _, err := coll.ReplaceOne(ctx, idFilter, doc, opts); err != nil {
			return err
		}
	case domain.WriteUpdate:
		filter := idFilter
		if len(w.Preconditions) > 0 {
			filter = append(filter, toBSONFilter(w.Preconditions)...)
		}
		set := bson.D{}
		for field, value := range w.Fields {
			set = append(set, bson.E{Key: field, Value: value})
		}
		res, err := coll.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: set}})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return domain.ErrPreconditionFailed
		}
	case domain.WriteDelete:
		if _, err := coll.DeleteOne(ctx, idFilter); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown write kind %d", w.Kind)
	}
	return nil
}

// Increment atomically adds delta to a numeric field via $inc, creating
// the document when absent, and returns the resulting value.
func (s *MongoStore) Increment(ctx context.Context, collection, id, field string, delta int64) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	update := bson.D{{Key: "$inc", Value: bson.D{{Key: field, Value: delta}}}}

	var doc bson.M
	err := s.db.Collection(collection).
		FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, update, opts).
		Decode(&doc)
	if err != nil {
		return 0, err
	}

	switch v := doc[field].(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("field %s is not numeric", field)
	}
}

// Subscribe opens a change stream on the collection and forwards events
// until ctx is cancelled.
func (s *MongoStore) Subscribe(ctx context.Context, collection string) (<-chan domain.ChangeEvent, error) {
	stream, err := s.db.Collection(collection).Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return nil, fmt.Errorf("failed opening change stream: %w", err)
	}

	events := make(chan domain.ChangeEvent)
	go func() {
		defer close(events)
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			var change struct {
				OperationType string `bson:"operationType"`
				DocumentKey   struct {
					ID string `bson:"_id"`
				} `bson:"documentKey"`
			}
			if err := stream.Decode(&change); err != nil {
				continue
			}
			select {
			case events <- domain.ChangeEvent{
				Collection: collection,
				ID:         change.DocumentKey.ID,
				Operation:  change.OperationType,
			}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func toBSONFilter(filters []domain.Filter) bson.D {
	out := bson.D{}
	for _, f := range filters {
		switch f.Op {
		case domain.OpElemMatch:
			out = append(out, bson.E{
				Key:   f.Field,
				Value: bson.D{{Key: "$elemMatch", Value: f.Value}},
			})
		default:
			out = append(out, bson.E{Key: f.Field, Value: f.Value})
		}
	}
	return out
}

// withID marshals doc and forces its _id to id, so callers do not have
// to keep struct ids and write ids in sync by hand.
func withID(doc any, id string) (bson.D, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	out := bson.D{{Key: "_id", Value: id}}
	for _, e := range d {
		if e.Key == "_id" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
