// Package memstore provides in-memory stand-ins for the task store, the
// identity store and the revocation list. They return the same sentinel
// errors as the real stores.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tasknest/tasknest/internal/model"
	"github.com/tasknest/tasknest/internal/repository"
	"github.com/tasknest/tasknest/internal/taskstore"
)

// Tasks is an in-memory task store.
type Tasks struct {
	mu        sync.Mutex
	tasks     map[primitive.ObjectID]model.Task
	mutations int
	err       error
}

// NewTasks returns an empty task store.
func NewTasks() *Tasks {
	return &Tasks{tasks: make(map[primitive.ObjectID]model.Task)}
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (s *Tasks) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Mutations reports how many inserts, updates and deletes succeeded.
func (s *Tasks) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutations
}

// Len reports the number of stored tasks across all owners.
func (s *Tasks) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// lookup finds id for owner. Caller holds mu.
func (s *Tasks) lookup(owner, id string) (model.Task, error) {
	if owner == "" {
		return model.Task{}, taskstore.ErrMissingOwner
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.Task{}, taskstore.ErrTaskNotFound
	}
	task, ok := s.tasks[oid]
	if !ok || task.OwnerID != owner {
		return model.Task{}, taskstore.ErrTaskNotFound
	}
	return task, nil
}

func (s *Tasks) Insert(ctx context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if task.OwnerID == "" {
		return taskstore.ErrMissingOwner
	}
	task.ID = primitive.NewObjectID()
	s.tasks[task.ID] = *task
	s.mutations++
	return nil
}

func (s *Tasks) ListByOwner(ctx context.Context, owner string) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if owner == "" {
		return nil, taskstore.ErrMissingOwner
	}

	out := []model.Task{}
	for _, task := range s.tasks {
		if task.OwnerID == owner {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID.Hex() > out[j].ID.Hex()
	})
	return out, nil
}

func (s *Tasks) GetByOwner(ctx context.Context, owner, id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	task, err := s.lookup(owner, id)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *Tasks) UpdateByOwner(ctx context.Context, owner, id, title, description string, now time.Time) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	task, err := s.lookup(owner, id)
	if err != nil {
		return nil, err
	}

	updatedAt := now.UTC().Truncate(time.Millisecond)
	if floor := task.UpdatedAt.Add(time.Millisecond); updatedAt.Before(floor) {
		updatedAt = floor
	}
	task.Title = title
	task.Description = description
	task.UpdatedAt = updatedAt
	s.tasks[task.ID] = task
	s.mutations++
	return &task, nil
}

func (s *Tasks) DeleteByOwner(ctx context.Context, owner, id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	task, err := s.lookup(owner, id)
	if err != nil {
		return nil, err
	}
	delete(s.tasks, task.ID)
	s.mutations++
	return &task, nil
}

func (s *Tasks) CountByOwner(ctx context.Context, owner string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	if owner == "" {
		return 0, taskstore.ErrMissingOwner
	}
	var n int64
	for _, task := range s.tasks {
		if task.OwnerID == owner {
			n++
		}
	}
	return n, nil
}

// Users is an in-memory identity store with a unique email constraint.
type Users struct {
	mu    sync.Mutex
	users map[string]model.User
	err   error
}

// NewUsers returns an empty identity store.
func NewUsers() *Users {
	return &Users{users: make(map[string]model.User)}
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (s *Users) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Users) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return repository.ErrEmailExists
		}
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Users) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &user, nil
}

func (s *Users) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, user := range s.users {
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *Users) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

// Revocations is an in-memory revocation list.
type Revocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewRevocations returns an empty revocation list.
func NewRevocations() *Revocations {
	return &Revocations{revoked: make(map[string]time.Time)}
}

func (r *Revocations) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[tokenID] = expiresAt
	return nil
}

func (r *Revocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[tokenID]
	return ok, nil
}
