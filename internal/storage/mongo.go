package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type document struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStorage keeps one document per key.
type MongoStorage struct {
	collection *mongo.Collection
}

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

func NewMongoStorage(db *mongo.Database, collection string) *MongoStorage {
	return &MongoStorage{collection: db.Collection(collection)}
}

// CreateIndexes expires values that have not been written for 90 days.
func (m *MongoStorage) CreateIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60),
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (m *MongoStorage) Get(ctx context.Context, key string) (string, error) {
	var doc document
	err := m.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return doc.Value, nil
}

func (m *MongoStorage) Set(ctx context.Context, key, value string) error {
	doc := document{Key: key, Value: value, UpdatedAt: time.Now()}
	opts := options.Replace().SetUpsert(true)
	if _, err := m.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, opts); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (m *MongoStorage) Delete(ctx context.Context, key string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (m *MongoStorage) Ping(ctx context.Context) error {
	return m.collection.Database().Client().Ping(ctx, readpref.Primary())
}
