package service

import (
	"context"
	"errors"
	"time"

	"github.com/tasknest/tasknest/internal/metrics"
	"github.com/tasknest/tasknest/internal/model"
	"github.com/tasknest/tasknest/internal/repository"
	"github.com/tasknest/tasknest/internal/taskstore"
)

// TaskStore is the owner-scoped persistence the task service needs.
type TaskStore interface {
	Insert(ctx context.Context, task *model.Task) error
	ListByOwner(ctx context.Context, owner string) ([]model.Task, error)
	GetByOwner(ctx context.Context, owner, id string) (*model.Task, error)
	UpdateByOwner(ctx context.Context, owner, id, title, description string, now time.Time) (*model.Task, error)
	DeleteByOwner(ctx context.Context, owner, id string) (*model.Task, error)
}

// OwnerLookup confirms a task owner still exists in the identity store.
type OwnerLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// TaskInput is the user-supplied part of a task.
type TaskInput struct {
	Title       string
	Description string
}

// TaskService handles task business logic. Every method acts on behalf of
// owner, the authenticated caller's user ID.
type TaskService struct {
	store   TaskStore
	owners  OwnerLookup
	metrics metrics.Recorder
	now     func() time.Time
}

// NewTaskService creates a new TaskService. When owners is non-nil, Create
// rolls back a task whose owner was deleted while it was being stored.
func NewTaskService(store TaskStore, owners OwnerLookup, recorder metrics.Recorder) *TaskService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &TaskService{
		store:   store,
		owners:  owners,
		metrics: recorder,
		now:     time.Now,
	}
}

func (s *TaskService) validate(in TaskInput) (TaskInput, error) {
	title, err := requiredText("title", in.Title, model.MaxTitleLength)
	if err != nil {
		return TaskInput{}, err
	}
	description, err := requiredText("description", in.Description, model.MaxDescriptionLength)
	if err != nil {
		return TaskInput{}, err
	}
	return TaskInput{Title: title, Description: description}, nil
}

// timestamp is the current time at the precision the store keeps.
func (s *TaskService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Create validates in and stores a new task owned by owner.
func (s *TaskService) Create(ctx context.Context, owner string, in TaskInput) (*model.Task, error) {
	if owner == "" {
		return nil, ErrUnauthenticated
	}
	in, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	task := &model.Task{
		Title:       in.Title,
		Description: in.Description,
		OwnerID:     owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Insert(ctx, task); err != nil {
		return nil, storageError("create task", err)
	}
	if err := s.confirmOwner(ctx, task); err != nil {
		return nil, err
	}

	s.metrics.IncTaskCreated()
	return task, nil
}

// confirmOwner checks the owner still exists after task was inserted and
// removes the task otherwise, so an account deletion never leaves orphans.
func (s *TaskService) confirmOwner(ctx context.Context, task *model.Task) error {
	if s.owners == nil {
		return nil
	}

	_, err := s.owners.GetUserByID(ctx, task.OwnerID)
	if err == nil {
		return nil
	}

	if _, delErr := s.store.DeleteByOwner(ctx, task.OwnerID, task.ID.Hex()); delErr != nil && !errors.Is(delErr, taskstore.ErrTaskNotFound) {
		return storageError("roll back task", errors.Join(err, delErr))
	}
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUnknownUser
	}
	return storageError("confirm owner", err)
}

// List returns owner's tasks, most recently updated first. It never returns nil.
func (s *TaskService) List(ctx context.Context, owner string) ([]model.Task, error) {
	if owner == "" {
		return nil, ErrUnauthenticated
	}
	tasks, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, storageError("list tasks", err)
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return tasks, nil
}

// Get returns one of owner's tasks.
func (s *TaskService) Get(ctx context.Context, owner, id string) (*model.Task, error) {
	if owner == "" {
		return nil, ErrUnauthenticated
	}
	task, err := s.store.GetByOwner(ctx, owner, id)
	if err != nil {
		return nil, mapStoreError("get task", err)
	}
	return task, nil
}

// Update replaces the title and description of one of owner's tasks.
// Input is validated before the task is looked up.
func (s *TaskService) Update(ctx context.Context, owner, id string, in TaskInput) (*model.Task, error) {
	if owner == "" {
		return nil, ErrUnauthenticated
	}
	in, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	task, err := s.store.UpdateByOwner(ctx, owner, id, in.Title, in.Description, s.timestamp())
	if err != nil {
		return nil, mapStoreError("update task", err)
	}

	s.metrics.IncTaskUpdated()
	return task, nil
}

// Delete removes one of owner's tasks and returns it as it was.
func (s *TaskService) Delete(ctx context.Context, owner, id string) (*model.Task, error) {
	if owner == "" {
		return nil, ErrUnauthenticated
	}
	task, err := s.store.DeleteByOwner(ctx, owner, id)
	if err != nil {
		return nil, mapStoreError("delete task", err)
	}

	s.metrics.IncTaskDeleted()
	return task, nil
}

func mapStoreError(op string, err error) error {
	switch {
	case errors.Is(err, taskstore.ErrTaskNotFound):
		return ErrNotFound
	case errors.Is(err, taskstore.ErrMissingOwner):
		return ErrUnauthenticated
	default:
		return storageError(op, err)
	}
}
