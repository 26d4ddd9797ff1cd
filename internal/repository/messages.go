package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/models"
)

// MessageRepository is the persisted, creation-time-ordered record of
// chat messages.
type MessageRepository interface {
	Insert(ctx context.Context, m *models.Message) error
	// ListVisible returns messages the user may read, capped at limit and
	// optionally restricted to createdAt < before, in chronological order.
	ListVisible(ctx context.Context, conversationID, userID string, limit int64, before time.Time) ([]*models.Message, error)
	// ListAll returns the full history in ascending order (support lookup).
	ListAll(ctx context.Context, conversationID string) ([]*models.Message, error)
	// MarkRead marks every unread message not sent by userID as read and
	// appends a read receipt. Returns the number of messages touched.
	MarkRead(ctx context.Context, conversationID, userID string, at time.Time) (int64, error)
}

type mongoMessages struct {
	coll *mongo.Collection
}

func NewMongoMessages(coll *mongo.Collection) MessageRepository {
	return &mongoMessages{coll: coll}
}

func (r *mongoMessages) Insert(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = primitive.NewObjectID().Hex()
	}
	m.CreatedAt = time.Now().UTC()
	if _, err := r.coll.InsertOne(ctx, m); err != nil {
		return wrapStore("insert message", err)
	}
	return nil
}

func (r *mongoMessages) ListVisible(ctx context.Context, conversationID, userID string, limit int64, before time.Time) ([]*models.Message, error) {
	filter := bson.M{
		"conversationId": conversationID,
		"$or": []bson.M{
			{"recipientId": bson.M{"$exists": false}},
			{"recipientId": nil},
			{"recipientId": userID},
			{"senderId": userID},
		},
	}
	if !before.IsZero() {
		filter["createdAt"] = bson.M{"$lt": before}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit)
	msgs, err := r.decodeAll(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	// query runs newest-first to honor the limit; callers want chronological
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *mongoMessages) ListAll(ctx context.Context, conversationID string) ([]*models.Message, error) {
	filter := bson.M{"conversationId": conversationID}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	return r.decodeAll(ctx, filter, opts)
}

func (r *mongoMessages) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) (int64, error) {
	filter := bson.M{
		"conversationId": conversationID,
		"senderId":       bson.M{"$ne": userID},
		"isRead":         false,
	}
	update := bson.M{
		"$set":  bson.M{"isRead": true},
		"$push": bson.M{"readBy": models.ReadReceipt{UserID: userID, ReadAt: at}},
	}
	res, err := r.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, wrapStore("mark messages read", err)
	}
	return res.ModifiedCount, nil
}

func (r *mongoMessages) decodeAll(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Message, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapStore("find messages", err)
	}
	defer cur.Close(ctx)

	var out []*models.Message
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, wrapStore("decode message", err)
		}
		out = append(out, &m)
	}
	return out, nil
}
