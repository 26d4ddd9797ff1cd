package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/apperr"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/models"
)

// ConversationRepository is the persisted record of a conversation's
// participants, status, last-message cache and unread counters.
type ConversationRepository interface {
	Insert(ctx context.Context, c *models.Conversation) error
	FindByID(ctx context.Context, id string) (*models.Conversation, error)
	FindByTask(ctx context.Context, taskID string) (*models.Conversation, error)
	FindByCode(ctx context.Context, code string) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID string, statuses []string) ([]*models.Conversation, error)
	// RecordMessage updates the lastMessage cache and increments the unread
	// counter of every listed recipient in one write. The increment must be
	// per-key so concurrent sends never lose counts.
	RecordMessage(ctx context.Context, id string, lm models.LastMessage, recipients []string) error
	ResetUnread(ctx context.Context, id, userID string) error
	SetStatus(ctx context.Context, id, status string) error
	Close(ctx context.Context, id string, closedBy models.ClosedBy) error
	Complete(ctx context.Context, id, action string, closedBy *models.ClosedBy) error
	AssignAgent(ctx context.Context, id string, agent models.AssignedAgent) error
}

type mongoConversations struct {
	coll *mongo.Collection
}

func NewMongoConversations(coll *mongo.Collection) ConversationRepository {
	return &mongoConversations{coll: coll}
}

func (r *mongoConversations) Insert(ctx context.Context, c *models.Conversation) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = primitive.NewObjectID().Hex()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.UnreadCount == nil {
		c.UnreadCount = models.UnreadCounts{}
	}
	if _, err := r.coll.InsertOne(ctx, c); err != nil {
		return wrapStore("insert conversation", err)
	}
	return nil
}

func (r *mongoConversations) FindByID(ctx context.Context, id string) (*models.Conversation, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoConversations) FindByTask(ctx context.Context, taskID string) (*models.Conversation, error) {
	return r.findOne(ctx, bson.M{"taskRequestId": taskID})
}

func (r *mongoConversations) FindByCode(ctx context.Context, code string) (*models.Conversation, error) {
	return r.findOne(ctx, bson.M{"conversationCode": code})
}

func (r *mongoConversations) findOne(ctx context.Context, filter bson.M) (*models.Conversation, error) {
	var c models.Conversation
	if err := r.coll.FindOne(ctx, filter).Decode(&c); err != nil {
		return nil, wrapStore("find conversation", err)
	}
	return &c, nil
}

func (r *mongoConversations) ListForUser(ctx context.Context, userID string, statuses []string) ([]*models.Conversation, error) {
	filter := bson.M{
		"participants.userId": userID,
		"status":              bson.M{"$in": statuses},
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "lastMessage.timestamp", Value: -1},
		{Key: "createdAt", Value: -1},
	})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapStore("list conversations", err)
	}
	defer cur.Close(ctx)

	var out []*models.Conversation
	for cur.Next(ctx) {
		var c models.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, wrapStore("decode conversation", err)
		}
		out = append(out, &c)
	}
	return out, nil
}

func (r *mongoConversations) RecordMessage(ctx context.Context, id string, lm models.LastMessage, recipients []string) error {
	update := bson.M{
		"$set": bson.M{"lastMessage": lm, "updatedAt": time.Now().UTC()},
	}
	if len(recipients) > 0 {
		inc := bson.M{}
		for _, uid := range recipients {
			inc["unreadCount."+uid] = 1
		}
		update["$inc"] = inc
	}
	return r.updateOne(ctx, id, update)
}

func (r *mongoConversations) ResetUnread(ctx context.Context, id, userID string) error {
	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{"unreadCount." + userID: 0, "updatedAt": time.Now().UTC()},
	})
}

func (r *mongoConversations) SetStatus(ctx context.Context, id, status string) error {
	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()},
	})
}

func (r *mongoConversations) Close(ctx context.Context, id string, closedBy models.ClosedBy) error {
	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{
			"status":    models.StatusClosed,
			"closedBy":  closedBy,
			"updatedAt": time.Now().UTC(),
		},
	})
}

func (r *mongoConversations) Complete(ctx context.Context, id, action string, closedBy *models.ClosedBy) error {
	set := bson.M{
		"taskCompleted":   true,
		"completedAction": action,
		"updatedAt":       time.Now().UTC(),
	}
	if closedBy != nil {
		set["status"] = models.StatusCompleted
		set["closedBy"] = *closedBy
	}
	return r.updateOne(ctx, id, bson.M{"$set": set})
}

func (r *mongoConversations) AssignAgent(ctx context.Context, id string, agent models.AssignedAgent) error {
	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{"assignedAgent": agent, "updatedAt": time.Now().UTC()},
	})
}

func (r *mongoConversations) updateOne(ctx context.Context, id string, update bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return wrapStore("update conversation", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update conversation: %w", apperr.ErrNotFound)
	}
	return nil
}
