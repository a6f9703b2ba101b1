package dto

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tasknest/tasknest/internal/model"
)

func TestToTaskResponse_WireNames(t *testing.T) {
	t.Parallel()

	id := primitive.NewObjectID()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	resp := ToTaskResponse(&model.Task{
		ID:          id,
		Title:       "Buy milk",
		Description: "2%",
		OwnerID:     "user-1",
		CreatedAt:   now,
		UpdatedAt:   now,
	})

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, key := range []string{"_id", "title", "description", "userId", "createdAt", "updatedAt"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("missing %q in %s", key, data)
		}
	}
	if fields["_id"] != id.Hex() {
		t.Errorf("expected hex id, got %v", fields["_id"])
	}
	if fields["createdAt"] != "2024-03-01T10:00:00Z" {
		t.Errorf("expected RFC 3339 timestamp, got %v", fields["createdAt"])
	}
}

func TestToTaskListResponse_Empty(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(ToTaskListResponse(nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("expected [], got %s", data)
	}
}

func TestToUserResponse_OmitsCredentials(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(ToUserResponse(&model.User{
		ID:           "01H",
		Name:         "Alice",
		Email:        "alice@example.com",
		PasswordHash: "$argon2id$secret",
	}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "argon2id") || strings.Contains(string(data), "password") {
		t.Errorf("credentials leaked: %s", data)
	}
}
