// Package taskstore persists tasks in MongoDB.
//
// Every query and mutation is built from ownerScope, so a task can only be
// read or changed through the identity that created it.
package taskstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tasknest/tasknest/internal/model"
)

// CollectionName is the collection holding task documents.
const CollectionName = "todos"

// Common errors for task store operations.
var (
	ErrTaskNotFound = errors.New("task not found")
	ErrMissingOwner = errors.New("task owner is required")
)

// Store wraps a MongoDB client and the task collection.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// New connects to MongoDB and verifies the connection.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &Store{
		client:     client,
		collection: client.Database(database).Collection(CollectionName),
	}, nil
}

// Ping checks the connection to MongoDB.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// ownerScope returns the base filter for all reads and writes of owner's tasks.
// The optional id narrows it to a single document.
func ownerScope(owner string, id *primitive.ObjectID) (bson.D, error) {
	if owner == "" {
		return nil, ErrMissingOwner
	}
	filter := bson.D{{Key: "userId", Value: owner}}
	if id != nil {
		filter = append(bson.D{{Key: "_id", Value: *id}}, filter...)
	}
	return filter, nil
}

// taskScope parses id and scopes it to owner. Malformed ids are reported as
// not found, same as ids that belong to someone else.
func taskScope(owner, id string) (bson.D, error) {
	if owner == "" {
		return nil, ErrMissingOwner
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrTaskNotFound
	}
	return ownerScope(owner, &oid)
}

// Insert stores a new task. The caller sets OwnerID and the timestamps;
// the ID is assigned here.
func (s *Store) Insert(ctx context.Context, task *model.Task) error {
	if task.OwnerID == "" {
		return ErrMissingOwner
	}

	task.ID = primitive.NewObjectID()
	if _, err := s.collection.InsertOne(ctx, task); err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// ListByOwner returns every task owned by owner, most recently updated first.
func (s *Store) ListByOwner(ctx context.Context, owner string) ([]model.Task, error) {
	filter, err := ownerScope(owner, nil)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "updatedAt", Value: -1},
		{Key: "_id", Value: -1},
	})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := []model.Task{}
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}
	return tasks, nil
}

// GetByOwner returns the task with id if owner owns it.
func (s *Store) GetByOwner(ctx context.Context, owner, id string) (*model.Task, error) {
	filter, err := taskScope(owner, id)
	if err != nil {
		return nil, err
	}

	var task model.Task
	if err := s.collection.FindOne(ctx, filter).Decode(&task); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// UpdateByOwner replaces title and description of an owned task and returns
// the updated document. updatedAt moves to now, or one millisecond past its
// stored value when the clock has not advanced.
func (s *Store) UpdateByOwner(ctx context.Context, owner, id, title, description string, now time.Time) (*model.Task, error) {
	filter, err := taskScope(owner, id)
	if err != nil {
		return nil, err
	}

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "title", Value: bson.D{{Key: "$literal", Value: title}}},
			{Key: "description", Value: bson.D{{Key: "$literal", Value: description}}},
			{Key: "updatedAt", Value: bson.D{{Key: "$max", Value: bson.A{
				now.UTC().Truncate(time.Millisecond),
				bson.D{{Key: "$add", Value: bson.A{"$updatedAt", 1}}},
			}}}},
		}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var task model.Task
	if err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&task); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return &task, nil
}

// DeleteByOwner removes an owned task and returns its prior state.
func (s *Store) DeleteByOwner(ctx context.Context, owner, id string) (*model.Task, error) {
	filter, err := taskScope(owner, id)
	if err != nil {
		return nil, err
	}

	var task model.Task
	if err := s.collection.FindOneAndDelete(ctx, filter).Decode(&task); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to delete task: %w", err)
	}
	return &task, nil
}

// CountByOwner returns how many tasks owner has.
func (s *Store) CountByOwner(ctx context.Context, owner string) (int64, error) {
	filter, err := ownerScope(owner, nil)
	if err != nil {
		return 0, err
	}

	n, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}
