// Package mongodb adapts a MongoDB collection to the replicated store
// contract. Every key lives as one document keyed by its joined path, with
// the parent path denormalized for subscription filtering; tombstones are
// documents with a null value, so the residual marker survives. Subscriptions
// replay current documents with a Find and then follow a change stream, which
// requires a replica set deployment.
package mongodb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/IndikaEK123456/Cash-Book-5/store"
)

const defaultCollection = "ledger_keys"

// record is the document shape of one replicated key.
type record struct {
	ID        string    `bson:"_id"`
	Parent    string    `bson:"parent"`
	Key       string    `bson:"key"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// Store is a MongoDB-backed replicated store.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

// New connects a MongoDB-backed store. The collection name may be empty to
// use the default.
func New(ctx context.Context, uri, database, collection string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collection == "" {
		collection = defaultCollection
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &Store{
		client: client,
		coll:   client.Database(database).Collection(collection),
		logger: logger,
	}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Put upserts the document for path. A tombstone stores a null value.
func (s *Store) Put(ctx context.Context, path store.Path, value []byte) error {
	if store.IsTombstone(value) {
		value = nil
	}
	rec := record{
		ID:        path.String(),
		Parent:    path.Parent().String(),
		Key:       path.Key(),
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	return nil
}

// Subscribe streams writes under path: children of a collection path, or the
// leaf key itself. The change stream opens before the replay so nothing falls
// between the two phases; overlap surfaces as duplicate deliveries, which the
// contract allows.
func (s *Store) Subscribe(ctx context.Context, path store.Path) (store.Subscription, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("subscribe needs a non-empty path")
	}
	joined := path.String()

	match := bson.D{{Key: "$match", Value: bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "fullDocument.parent", Value: joined}},
		bson.D{{Key: "fullDocument._id", Value: joined}},
	}}}}}
	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := s.coll.Watch(streamCtx, mongo.Pipeline{match},
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	sub := &subscription{
		events: make(chan store.Notification, 16),
		cancel: cancel,
	}
	go sub.run(streamCtx, s.coll, stream, joined, s.logger)
	return sub, nil
}

type subscription struct {
	events     chan store.Notification
	cancel     context.CancelFunc
	cancelOnce sync.Once
}

func (s *subscription) Events() <-chan store.Notification { return s.events }

func (s *subscription) Cancel() {
	s.cancelOnce.Do(s.cancel)
}

func (s *subscription) emit(ctx context.Context, n store.Notification) bool {
	select {
	case s.events <- n:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *subscription) run(ctx context.Context, coll *mongo.Collection, stream *mongo.ChangeStream, joined string, logger *zap.Logger) {
	defer close(s.events)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stream.Close(closeCtx); err != nil {
			logger.Debug("change stream close failed", zap.Error(err))
		}
	}()

	if !s.replay(ctx, coll, joined, logger) {
		return
	}
	if !s.emit(ctx, store.Notification{Sync: true}) {
		return
	}

	for stream.Next(ctx) {
		var ev struct {
			FullDocument record `bson:"fullDocument"`
		}
		if err := stream.Decode(&ev); err != nil {
			logger.Warn("skip undecodable change event", zap.Error(err))
			continue
		}
		if !s.emit(ctx, store.Notification{Key: ev.FullDocument.Key, Value: ev.FullDocument.Value}) {
			return
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		logger.Warn("change stream stopped", zap.String("path", joined), zap.Error(err))
	}
}

func (s *subscription) replay(ctx context.Context, coll *mongo.Collection, joined string, logger *zap.Logger) bool {
	filter := bson.M{"$or": []bson.M{{"parent": joined}, {"_id": joined}}}
	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("replay query failed", zap.String("path", joined), zap.Error(err))
		}
		return false
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var rec record
		if err := cursor.Decode(&rec); err != nil {
			logger.Warn("skip undecodable document", zap.Error(err))
			continue
		}
		if !s.emit(ctx, store.Notification{Key: rec.Key, Value: rec.Value}) {
			return false
		}
	}
	if err := cursor.Err(); err != nil && ctx.Err() == nil {
		logger.Warn("replay cursor failed", zap.String("path", joined), zap.Error(err))
		return false
	}
	return true
}

var _ store.Store = (*Store)(nil)
