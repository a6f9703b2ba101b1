package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tasknest/tasknest/internal/auth"
	"github.com/tasknest/tasknest/internal/metrics"
	"github.com/tasknest/tasknest/internal/model"
	"github.com/tasknest/tasknest/internal/service"
)

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// UserResolver maps a token subject to a live user.
// It returns service.ErrUnknownUser when the user no longer exists.
type UserResolver interface {
	ResolveUser(ctx context.Context, userID string) (*model.User, error)
}

// RevocationChecker reports whether a token ID was revoked by logout.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger      *slog.Logger
	Tokens      TokenVerifier
	Users       UserResolver
	Revocations RevocationChecker
	Metrics     metrics.Recorder
}

// Auth returns a middleware that authenticates requests with a bearer token
// and attaches the caller's identity to the request context.
//
// Failures answer 401 with one of three codes: UNAUTHENTICATED when no
// token is sent, INVALID_TOKEN when it fails verification or was revoked,
// UNKNOWN_USER when its subject no longer exists.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			fail := func(reason, code, message string) {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", reason),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(ctx)),
				)
				cfg.Metrics.IncAuthFailure(reason)
				writeError(w, http.StatusUnauthorized, code, message)
			}

			token := extractBearerToken(r)
			if token == "" {
				fail(metrics.ReasonUnauthenticated, "UNAUTHENTICATED", "Authentication required")
				return
			}

			claims, err := cfg.Tokens.Verify(token)
			if err != nil {
				fail(metrics.ReasonInvalidToken, "INVALID_TOKEN", "Invalid or expired token")
				return
			}

			if cfg.Revocations != nil {
				revoked, err := cfg.Revocations.IsRevoked(ctx, claims.ID)
				if err != nil {
					cfg.Logger.Error("revocation check failed",
						slog.String("error", err.Error()),
						slog.String("request_id", GetRequestID(ctx)),
					)
				} else if revoked {
					fail(metrics.ReasonInvalidToken, "INVALID_TOKEN", "Invalid or expired token")
					return
				}
			}

			user, err := cfg.Users.ResolveUser(ctx, claims.Subject)
			if err != nil {
				if errors.Is(err, service.ErrUnknownUser) {
					fail(metrics.ReasonUnknownUser, "UNKNOWN_USER", "User no longer exists")
					return
				}
				cfg.Logger.Error("identity lookup failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(ctx)),
				)
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
				return
			}

			identity := model.IdentityFor(user, claims.ID, claims.ExpiresAt.Time)

			cfg.Logger.Debug("authentication successful",
				slog.String("user_id", identity.UserID),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.String("request_id", GetRequestID(ctx)),
			)

			next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(ctx, identity)))
		})
	}
}

// extractBearerToken returns the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func extractBearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
