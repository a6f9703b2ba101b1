package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tasknest/tasknest/internal/auth"
	"github.com/tasknest/tasknest/internal/handler/dto"
	"github.com/tasknest/tasknest/internal/middleware"
	"github.com/tasknest/tasknest/internal/service"
)

// AuthHandler handles account and session endpoints.
type AuthHandler struct {
	svc    *service.AccountService
	logger *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AccountService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		svc:    svc,
		logger: logger,
	}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.svc.Register(r.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("user_registered",
		"user_id", session.User.ID,
		"request_id", middleware.GetRequestID(r.Context()),
	)

	writeJSON(w, http.StatusCreated, toAuthResponse(session))
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.svc.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(session))
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.ResolveUser(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToUserResponse(user))
}

// Logout handles POST /api/auth/logout. The presented token stops working
// immediately.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if err := h.svc.Logout(r.Context(), identity); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("user_logged_out",
		"user_id", identity.UserID,
		"request_id", middleware.GetRequestID(r.Context()),
	)

	w.WriteHeader(http.StatusNoContent)
}

// DeleteMe handles DELETE /api/auth/me.
func (h *AuthHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.DeleteAccount(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("user_deleted",
		"user_id", user.ID,
		"request_id", middleware.GetRequestID(r.Context()),
	)

	writeJSON(w, http.StatusOK, dto.ToUserResponse(user))
}

func toAuthResponse(session *service.Session) *dto.AuthResponse {
	return &dto.AuthResponse{
		Token:     session.Token.Token,
		ExpiresAt: session.Token.ExpiresAt.UTC(),
		User:      dto.ToUserResponse(session.User),
	}
}

// handleServiceError maps service errors to HTTP responses.
func (h *AuthHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error())
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusConflict, "EMAIL_TAKEN", "Email is already registered")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
	case errors.Is(err, service.ErrUnknownUser):
		writeError(w, http.StatusUnauthorized, "UNKNOWN_USER", "User no longer exists")
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
	case errors.Is(err, service.ErrUserHasTasks):
		writeError(w, http.StatusConflict, "USER_HAS_TASKS", "Delete your tasks before deleting the account")
	default:
		h.logger.Error("internal_error",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
