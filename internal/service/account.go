package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/tasknest/tasknest/internal/auth"
	"github.com/tasknest/tasknest/internal/cache"
	"github.com/tasknest/tasknest/internal/metrics"
	"github.com/tasknest/tasknest/internal/model"
	"github.com/tasknest/tasknest/internal/repository"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 256
	maxNameLength     = 100
	maxEmailLength    = 254
)

// UserStore is the identity store.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// TaskCounter reports how many tasks a user owns.
type TaskCounter interface {
	CountByOwner(ctx context.Context, owner string) (int64, error)
}

// TokenIssuer signs bearer tokens.
type TokenIssuer interface {
	Issue(userID string) (*auth.IssuedToken, error)
}

// IdentityCache caches users by ID. GetUser returns cache.ErrCacheMiss on a
// miss and cache.ErrUserDeleted after DeleteUser. SetUser must not replace a
// deletion mark.
type IdentityCache interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	SetUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, userID string) error
}

// TokenRevoker records logged-out tokens.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error
}

// AccountDeps wires an AccountService. Cache and Metrics are optional.
type AccountDeps struct {
	Users   UserStore
	Tasks   TaskCounter
	Tokens  TokenIssuer
	Revoker TokenRevoker
	Cache   IdentityCache
	Metrics metrics.Recorder
	Logger  *slog.Logger
}

// AccountService handles registration, login and account lifecycle.
type AccountService struct {
	users   UserStore
	tasks   TaskCounter
	tokens  TokenIssuer
	revoker TokenRevoker
	cache   IdentityCache
	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time

	hashPassword   func(string) (string, error)
	verifyPassword func(password, encoded string) (bool, error)
	burnPassword   func(string)
}

// NewAccountService creates a new AccountService.
func NewAccountService(deps AccountDeps) *AccountService {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &AccountService{
		users:          deps.Users,
		tasks:          deps.Tasks,
		tokens:         deps.Tokens,
		revoker:        deps.Revoker,
		cache:          deps.Cache,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		now:            time.Now,
		hashPassword:   auth.HashPassword,
		verifyPassword: auth.VerifyPassword,
		burnPassword:   auth.BurnVerification,
	}
}

// RegisterInput defines input for creating an account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// LoginInput defines input for logging in.
type LoginInput struct {
	Email    string
	Password string
}

// Session is a freshly issued token and the user it belongs to.
type Session struct {
	Token *auth.IssuedToken
	User  *model.User
}

// normalizeEmail lower-cases and validates a bare address.
func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", invalid("email", "is required")
	}
	if len(email) > maxEmailLength {
		return "", invalid("email", "is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("email", "is not a valid address")
	}
	return email, nil
}

func validatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength {
		return invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if n > maxPasswordLength {
		return invalid("password", "is too long")
	}
	return nil
}

// Register creates an account and signs the caller in.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	name, err := requiredText("name", in.Name, maxNameLength)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           ulid.Make().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC().Truncate(time.Microsecond),
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailTaken
		}
		return nil, storageError("create user", err)
	}

	s.metrics.IncUserRegistered()
	return s.startSession(user)
}

// Login checks credentials and issues a token. Unknown emails and wrong
// passwords produce the same error and take comparable time.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, invalid("password", "is required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.burnPassword(in.Password)
			s.metrics.IncAuthFailure(metrics.ReasonInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		return nil, storageError("get user", err)
	}

	ok, err := s.verifyPassword(in.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.metrics.IncAuthFailure(metrics.ReasonInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	return s.startSession(user)
}

func (s *AccountService) startSession(user *model.User) (*Session, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, User: user}, nil
}

// ResolveUser looks up the user behind a verified token, preferring the
// identity cache. ErrUnknownUser means the account no longer exists.
func (s *AccountService) ResolveUser(ctx context.Context, userID string) (*model.User, error) {
	if s.cache != nil {
		user, err := s.cache.GetUser(ctx, userID)
		if err == nil {
			return user, nil
		}
		if errors.Is(err, cache.ErrUserDeleted) {
			return nil, ErrUnknownUser
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("identity cache read failed", "error", err)
		}
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, storageError("get user", err)
	}

	if s.cache != nil {
		if err := s.cache.SetUser(ctx, user); err != nil {
			s.logger.Warn("identity cache write failed", "error", err)
		}
	}
	return user, nil
}

// Logout revokes the token that authenticated identity.
func (s *AccountService) Logout(ctx context.Context, identity *model.Identity) error {
	if identity == nil {
		return ErrUnauthenticated
	}
	if err := s.revoker.RevokeToken(ctx, identity.TokenID, identity.ExpiresAt); err != nil {
		return storageError("revoke token", err)
	}
	return nil
}

// DeleteAccount removes the caller's account. It is refused while the
// caller still owns tasks. The current token is revoked on success.
//
// Tasks are counted again after the row is gone. A task that landed in
// between brings the account back and the deletion is refused; a task
// created after the recount is rolled back by TaskService.Create, which
// checks the owner after inserting.
func (s *AccountService) DeleteAccount(ctx context.Context, identity *model.Identity) (*model.User, error) {
	if identity == nil {
		return nil, ErrUnauthenticated
	}

	n, err := s.tasks.CountByOwner(ctx, identity.UserID)
	if err != nil {
		return nil, storageError("count tasks", err)
	}
	if n > 0 {
		return nil, ErrUserHasTasks
	}

	user, err := s.users.GetUserByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, storageError("get user", err)
	}

	if err := s.users.DeleteUser(ctx, user.ID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, storageError("delete user", err)
	}

	n, err = s.tasks.CountByOwner(ctx, user.ID)
	if err != nil || n > 0 {
		if restoreErr := s.users.CreateUser(ctx, user); restoreErr != nil {
			s.logger.Error("restoring user after refused deletion failed",
				"user_id", user.ID,
				"error", restoreErr,
			)
			return nil, storageError("restore user", restoreErr)
		}
		if err != nil {
			return nil, storageError("count tasks", err)
		}
		return nil, ErrUserHasTasks
	}

	if s.cache != nil {
		if err := s.cache.DeleteUser(ctx, user.ID); err != nil {
			s.logger.Warn("identity cache invalidation failed", "user_id", user.ID, "error", err)
		}
	}
	if err := s.revoker.RevokeToken(ctx, identity.TokenID, identity.ExpiresAt); err != nil {
		s.logger.Warn("token revocation after account deletion failed", "user_id", user.ID, "error", err)
	}

	return user, nil
}
