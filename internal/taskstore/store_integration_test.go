//go:build integration

package taskstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tasknest/tasknest/internal/model"
	"github.com/tasknest/tasknest/internal/testutil"
)

func TestIntegrationStore_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, ctx)

	task := testutil.NewTestTask(t, "alice", "Buy milk", "2%")
	if err := store.Insert(ctx, task); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if task.ID.IsZero() {
		t.Fatal("expected ID to be assigned")
	}

	got, err := store.GetByOwner(ctx, "alice", task.ID.Hex())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Buy milk" || got.Description != "2%" || got.OwnerID != "alice" {
		t.Errorf("unexpected task: %+v", got)
	}
}

func TestIntegrationStore_OwnerIsolation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, ctx)

	mine := testutil.NewTestTask(t, "alice", "Mine", "alice's")
	theirs := testutil.NewTestTask(t, "bob", "Theirs", "bob's")
	for _, task := range []*model.Task{mine, theirs} {
		if err := store.Insert(ctx, task); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if _, err := store.GetByOwner(ctx, "bob", mine.ID.Hex()); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound on foreign get, got %v", err)
	}
	if _, err := store.UpdateByOwner(ctx, "bob", mine.ID.Hex(), "x", "y", time.Now()); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound on foreign update, got %v", err)
	}
	if _, err := store.DeleteByOwner(ctx, "bob", mine.ID.Hex()); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound on foreign delete, got %v", err)
	}

	tasks, err := store.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != mine.ID {
		t.Fatalf("expected only alice's task, got %+v", tasks)
	}
	if tasks[0].Title != "Mine" {
		t.Errorf("foreign update leaked: %+v", tasks[0])
	}
}

func TestIntegrationStore_ListOrderAndEmpty(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, ctx)

	empty, err := store.ListByOwner(ctx, "nobody")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", empty)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	older := testutil.NewTestTask(t, "alice", "Older", "first")
	older.CreatedAt, older.UpdatedAt = base.Add(-time.Hour), base.Add(-time.Hour)
	newer := testutil.NewTestTask(t, "alice", "Newer", "second")
	newer.CreatedAt, newer.UpdatedAt = base, base

	for _, task := range []*model.Task{older, newer} {
		if err := store.Insert(ctx, task); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	tasks, err := store.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 || tasks[0].Title != "Newer" || tasks[1].Title != "Older" {
		t.Fatalf("expected newest first, got %+v", tasks)
	}

	// Touching the older task moves it to the front.
	if _, err := store.UpdateByOwner(ctx, "alice", older.ID.Hex(), "Older", "touched", base.Add(time.Minute)); err != nil {
		t.Fatalf("update: %v", err)
	}
	tasks, err = store.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if tasks[0].ID != older.ID {
		t.Errorf("expected updated task first, got %+v", tasks)
	}
}

func TestIntegrationStore_UpdateAdvancesUpdatedAt(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, ctx)

	task := testutil.NewTestTask(t, "alice", "Title", "Description")
	if err := store.Insert(ctx, task); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// A clock that has not moved still yields a strictly later updatedAt.
	updated, err := store.UpdateByOwner(ctx, "alice", task.ID.Hex(), "$set", "{$literal}", task.UpdatedAt)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.UpdatedAt.After(task.UpdatedAt) {
		t.Errorf("expected updatedAt after %s, got %s", task.UpdatedAt, updated.UpdatedAt)
	}
	if !updated.CreatedAt.Equal(task.CreatedAt) {
		t.Errorf("createdAt changed: %s -> %s", task.CreatedAt, updated.CreatedAt)
	}
	if updated.Title != "$set" || updated.Description != "{$literal}" {
		t.Errorf("expected operator-looking text stored verbatim, got %+v", updated)
	}
	if updated.OwnerID != "alice" {
		t.Errorf("owner changed: %s", updated.OwnerID)
	}
}

func TestIntegrationStore_DeleteReturnsPriorState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, ctx)

	task := testutil.NewTestTask(t, "alice", "Gone", "soon")
	if err := store.Insert(ctx, task); err != nil {
		t.Fatalf("insert: %v", err)
	}

	deleted, err := store.DeleteByOwner(ctx, "alice", task.ID.Hex())
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.ID != task.ID || deleted.Title != "Gone" {
		t.Errorf("unexpected deleted task: %+v", deleted)
	}

	if _, err := store.GetByOwner(ctx, "alice", task.ID.Hex()); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound after delete, got %v", err)
	}
	if _, err := store.DeleteByOwner(ctx, "alice", task.ID.Hex()); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound on second delete, got %v", err)
	}
}

func TestIntegrationStore_CountByOwner(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, ctx)

	for i := 0; i < 3; i++ {
		if err := store.Insert(ctx, testutil.NewTestTask(t, "alice", "t", "d")); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	n, err := store.CountByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 tasks, got %d", n)
	}

	n, err = store.CountByOwner(ctx, "bob")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 tasks, got %d", n)
	}
}

func TestIntegrationStore_MalformedID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, ctx)

	if _, err := store.GetByOwner(ctx, "alice", "xyz"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
	if _, err := store.GetByOwner(ctx, "alice", primitive.NewObjectID().Hex()); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func newTestStore(t *testing.T, ctx context.Context) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	uri := testutil.RequireEnv(t, "MONGO_URI")

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	t.Cleanup(cancel)

	database := testutil.UniqueID("tasknest_test")
	store, err := New(ctx, uri, database)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		_ = store.client.Database(database).Drop(context.Background())
		_ = store.Close(context.Background())
	})

	return store
}
