// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/tasknest/tasknest/internal/model"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// TaskRequest is the body of POST /api/todos and PUT /api/todos/{id}.
type TaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// TaskResponse represents a task in API responses.
type TaskResponse struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ToTaskResponse converts a Task model to its API form.
func ToTaskResponse(task *model.Task) *TaskResponse {
	return &TaskResponse{
		ID:          task.ID.Hex(),
		Title:       task.Title,
		Description: task.Description,
		UserID:      task.OwnerID,
		CreatedAt:   task.CreatedAt.UTC(),
		UpdatedAt:   task.UpdatedAt.UTC(),
	}
}

// ToTaskListResponse converts tasks, keeping order. The result is never nil
// so an empty list encodes as [].
func ToTaskListResponse(tasks []model.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, *ToTaskResponse(&tasks[i]))
	}
	return out
}

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse represents a user in API responses. Credentials are never exposed.
type UserResponse struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToUserResponse converts a User model to its API form.
func ToUserResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.UTC(),
	}
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	User      *UserResponse `json:"user"`
}
