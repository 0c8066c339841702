package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/serroba/guardflux/internal/ratelimit"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// RateLimitsCollection is the collection (and table) holding counter records.
const RateLimitsCollection = "rate_limits"

type mongoRecord struct {
	ID           string    `bson:"_id"`
	UserID       string    `bson:"userId"`
	Route        string    `bson:"route"`
	RequestCount int64     `bson:"requestCount"`
	LastRequest  time.Time `bson:"lastRequest"`
	Version      int64     `bson:"version"`
}

// MongoRecordStore is a MongoDB implementation of ratelimit.RecordStore.
type MongoRecordStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoRecordStore creates a record store over the rate_limits collection of database.
func NewMongoRecordStore(client *mongo.Client, database string) *MongoRecordStore {
	return &MongoRecordStore{
		client: client,
		coll:   client.Database(database).Collection(RateLimitsCollection),
	}
}

// Migrate creates the lastRequest index used by Purge.
func (m *MongoRecordStore) Migrate(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "lastRequest", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create lastRequest index: %w", err)
	}

	return nil
}

func (m *MongoRecordStore) Load(ctx context.Context, key string) (*ratelimit.Record, error) {
	var doc mongoRecord

	err := m.coll.FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ratelimit.ErrNotFound
		}

		return nil, err
	}

	return &ratelimit.Record{
		Key:          doc.ID,
		UserID:       doc.UserID,
		Route:        doc.Route,
		RequestCount: doc.RequestCount,
		WindowStart:  doc.LastRequest.UTC(),
		Version:      doc.Version,
	}, nil
}

// Save inserts or updates rec. WindowStart is normalized to BSON's
// millisecond precision.
func (m *MongoRecordStore) Save(ctx context.Context, rec *ratelimit.Record) error {
	rec.WindowStart = rec.WindowStart.UTC().Truncate(time.Millisecond)

	if rec.Version == 0 {
		_, err := m.coll.InsertOne(ctx, mongoRecord{
			ID:           rec.Key,
			UserID:       rec.UserID,
			Route:        rec.Route,
			RequestCount: rec.RequestCount,
			LastRequest:  rec.WindowStart,
			Version:      1,
		})
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ratelimit.ErrConflict
			}

			return err
		}

		rec.Version = 1

		return nil
	}

	res, err := m.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: rec.Key}, {Key: "version", Value: rec.Version}},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "requestCount", Value: rec.RequestCount},
				{Key: "lastRequest", Value: rec.WindowStart},
			}},
			{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
		},
	)
	if err != nil {
		return err
	}

	if res.MatchedCount == 0 {
		return ratelimit.ErrConflict
	}

	rec.Version++

	return nil
}

func (m *MongoRecordStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := m.coll.DeleteMany(ctx, bson.D{{Key: "lastRequest", Value: bson.D{{Key: "$lt", Value: before}}}})
	if err != nil {
		return 0, err
	}

	return res.DeletedCount, nil
}

// Ping checks MongoDB connectivity.
func (m *MongoRecordStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// Compile-time checks.
var (
	_ ratelimit.RecordStore = (*MongoRecordStore)(nil)
	_ ratelimit.Purger      = (*MongoRecordStore)(nil)
)
