package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/restock/internal/domain/models"
)

// Enqueue stores side-effect tasks in the outbox collection.
func (r *MongoDBRepository) Enqueue(ctx context.Context, tasks []models.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(tasks))
	for _, task := range tasks {
		docs = append(docs, task)
	}
	if _, err := r.db.Collection(tasksCollection).InsertMany(ctx, docs); err != nil {
		return translate(fmt.Errorf("enqueue %d tasks: %w", len(tasks), err))
	}
	return nil
}

// Pending returns the oldest tasks still awaiting execution.
func (r *MongoDBRepository) Pending(ctx context.Context, limit int) ([]models.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.db.Collection(tasksCollection).Find(ctx, bson.M{"state": models.TaskPending}, opts)
	if err != nil {
		return nil, translate(fmt.Errorf("find pending tasks: %w", err))
	}
	defer cursor.Close(ctx)

	var tasks []models.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, translate(fmt.Errorf("decode pending tasks: %w", err))
	}
	return tasks, nil
}

// Claim leases a pending task with a single conditional update.
func (r *MongoDBRepository) Claim(ctx context.Context, id string, now, until time.Time) (bool, error) {
	res, err := r.db.Collection(tasksCollection).UpdateOne(ctx,
		bson.M{
			"_id":   id,
			"state": models.TaskPending,
			"$or": bson.A{
				bson.M{"leased_until": nil},
				bson.M{"leased_until": bson.M{"$lte": now}},
			},
		},
		bson.M{"$set": bson.M{"leased_until": until}},
	)
	if err != nil {
		return false, translate(fmt.Errorf("claim task %s: %w", id, err))
	}
	return res.ModifiedCount == 1, nil
}

// MarkDone records a successful task execution.
func (r *MongoDBRepository) MarkDone(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Collection(tasksCollection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set":   bson.M{"state": models.TaskDone, "updated_at": at},
			"$inc":   bson.M{"attempts": 1},
			"$unset": bson.M{"leased_until": ""},
		},
	)
	return translate(err)
}

// MarkFailed records a failed attempt; dead tasks are not picked up again.
func (r *MongoDBRepository) MarkFailed(ctx context.Context, id string, cause string, dead bool, at time.Time) error {
	state := models.TaskPending
	if dead {
		state = models.TaskDead
	}
	_, err := r.db.Collection(tasksCollection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set":   bson.M{"state": state, "last_error": cause, "updated_at": at},
			"$inc":   bson.M{"attempts": 1},
			"$unset": bson.M{"leased_until": ""},
		},
	)
	return translate(err)
}

// RecordMovement appends an audit record. Replays of the same record id are ignored.
func (r *MongoDBRepository) RecordMovement(ctx context.Context, record models.MovementRecord) error {
	if _, err := r.db.Collection(movementsCollection).InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return translate(fmt.Errorf("record movement %s: %w", record.ID, err))
	}
	return nil
}
