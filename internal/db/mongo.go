package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TokensCollection is the collection backing MongoTokenStore.
const TokensCollection = "tokens"

// ConnectMongo connects to MongoDB and verifies the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

type tokenDocument struct {
	Key       string    `bson:"key"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoTokenStore implements TokenStore on a MongoDB collection.
type MongoTokenStore struct {
	Collection *mongo.Collection

	mu          sync.Mutex
	initialized bool
}

// NewMongoTokenStore returns a store on the tokens collection of database.
func NewMongoTokenStore(database *mongo.Database) *MongoTokenStore {
	return &MongoTokenStore{Collection: database.Collection(TokensCollection)}
}

// Init creates the unique key index on first use. Subsequent calls are no-ops.
func (s *MongoTokenStore) Init(ctx context.Context) error {
	if s.Collection == nil {
		return fmt.Errorf("%w: mongo collection is nil", ErrStoreUnavailable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	_, err := s.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	s.initialized = true
	return nil
}

// Put upserts value under key.
func (s *MongoTokenStore) Put(ctx context.Context, key, value string) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	_, err := s.Collection.UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{"$set": tokenDocument{Key: key, Value: value, UpdatedAt: time.Now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Get returns the value stored under key, or "" when there is none.
func (s *MongoTokenStore) Get(ctx context.Context, key string) (string, error) {
	if err := s.Init(ctx); err != nil {
		return "", err
	}
	var doc tokenDocument
	err := s.Collection.FindOne(ctx, bson.M{"key": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return doc.Value, nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *MongoTokenStore) Remove(ctx context.Context, key string) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	if _, err := s.Collection.DeleteOne(ctx, bson.M{"key": key}); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}
