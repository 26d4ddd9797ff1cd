package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/apperr"
)

// Connect opens a Mongo client and verifies the connection with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return client, nil
}

// Collections used by the chat core.
const (
	ConversationsCollection = "conversations"
	MessagesCollection      = "messages"
	TasksCollection         = "taskrequests"
)

// EnsureIndexes creates the indexes the repositories rely on.
// taskRequestId is unique so concurrent conversation creation for one task
// collapses to a single document; conversationCode is sparse-unique.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	convIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "participants.userId", Value: 1}}},
		{Keys: bson.D{{Key: "taskRequestId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "conversationCode", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	}
	if _, err := db.Collection(ConversationsCollection).Indexes().CreateMany(ctx, convIdx); err != nil {
		return err
	}
	msgIdx := mongo.IndexModel{
		Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "createdAt", Value: -1}},
	}
	_, err := db.Collection(MessagesCollection).Indexes().CreateOne(ctx, msgIdx)
	return err
}

// wrapStore normalizes driver errors into the app taxonomy.
func wrapStore(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", op, apperr.ErrConflict)
	}
	return fmt.Errorf("%s: %v: %w", op, err, apperr.ErrUnavailable)
}
