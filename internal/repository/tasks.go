package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/models"
)

// TaskRepository is the narrow seam to the task workflow: the chat core
// looks a task up by id when opening its conversation and flips its status
// when completion is recorded through the chat.
type TaskRepository interface {
	FindByID(ctx context.Context, id string) (*models.TaskRequest, error)
	SetStatus(ctx context.Context, id, status string) error
}

type mongoTasks struct {
	coll *mongo.Collection
}

func NewMongoTasks(coll *mongo.Collection) TaskRepository {
	return &mongoTasks{coll: coll}
}

func (r *mongoTasks) FindByID(ctx context.Context, id string) (*models.TaskRequest, error) {
	var t models.TaskRequest
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		return nil, wrapStore("find task", err)
	}
	return &t, nil
}

func (r *mongoTasks) SetStatus(ctx context.Context, id, status string) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return wrapStore("update task", err)
	}
	return nil
}
