// internal/database/mongodb.go
package database

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDB struct {
	Client  *mongo.Client
	Threads *mongo.Collection
	Users   *mongo.Collection
}

func NewMongoDB(uri, dbName string, timeout time.Duration) (*MongoDB, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.WithField("database", dbName).Info("Successfully connected to MongoDB")

	db := client.Database(dbName)
	return &MongoDB{
		Client:  client,
		Threads: db.Collection("threads"),
		Users:   db.Collection("users"),
	}, nil
}

// EnsureIndexes creates the indexes used by the listing and lookup queries.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	threadIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "parentId", Value: 1},
				{Key: "createdAt", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "author", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "children", Value: 1}},
		},
	}

	if _, err := m.Threads.Indexes().CreateMany(ctx, threadIndexes); err != nil {
		return fmt.Errorf("failed to create thread indexes: %w", err)
	}

	userIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}

	if _, err := m.Users.Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	return nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	log.Info("Closing MongoDB connection")
	return m.Client.Disconnect(ctx)
}
