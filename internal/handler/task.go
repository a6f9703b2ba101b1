package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tasknest/tasknest/internal/auth"
	"github.com/tasknest/tasknest/internal/handler/dto"
	"github.com/tasknest/tasknest/internal/middleware"
	"github.com/tasknest/tasknest/internal/service"
)

// TaskHandler handles HTTP requests for task operations.
// Every route sits behind middleware.Auth; the owner is always the caller.
type TaskHandler struct {
	svc    *service.TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(svc *service.TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		svc:    svc,
		logger: logger,
	}
}

// Create handles POST /api/todos.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.TaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	owner := auth.UserIDFromContext(r.Context())
	task, err := h.svc.Create(r.Context(), owner, service.TaskInput{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("task_created",
		"task_id", task.ID.Hex(),
		"user_id", owner,
		"request_id", middleware.GetRequestID(r.Context()),
	)

	writeJSON(w, http.StatusCreated, dto.ToTaskResponse(task))
}

// List handles GET /api/todos.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.List(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToTaskListResponse(tasks))
}

// Get handles GET /api/todos/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.svc.Get(r.Context(), auth.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToTaskResponse(task))
}

// Update handles PUT /api/todos/{id}.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.TaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	owner := auth.UserIDFromContext(r.Context())
	task, err := h.svc.Update(r.Context(), owner, chi.URLParam(r, "id"), service.TaskInput{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("task_updated",
		"task_id", task.ID.Hex(),
		"user_id", owner,
		"request_id", middleware.GetRequestID(r.Context()),
	)

	writeJSON(w, http.StatusOK, dto.ToTaskResponse(task))
}

// Delete handles DELETE /api/todos/{id}. The body is the removed task.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner := auth.UserIDFromContext(r.Context())
	task, err := h.svc.Delete(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("task_deleted",
		"task_id", task.ID.Hex(),
		"user_id", owner,
		"request_id", middleware.GetRequestID(r.Context()),
	)

	writeJSON(w, http.StatusOK, dto.ToTaskResponse(task))
}

// handleServiceError maps service errors to HTTP responses.
func (h *TaskHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "TASK_NOT_FOUND", "Task not found")
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
	case errors.Is(err, service.ErrUnknownUser):
		writeError(w, http.StatusUnauthorized, "UNKNOWN_USER", "User no longer exists")
	default:
		h.logger.Error("internal_error",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
