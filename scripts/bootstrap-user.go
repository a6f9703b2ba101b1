package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tasknest/tasknest/internal/auth"
	"github.com/tasknest/tasknest/internal/model"
	"github.com/tasknest/tasknest/internal/repository"
)

type output struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Created   bool      `json:"created"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		jwtSecret   = flag.String("jwt-secret", os.Getenv("JWT_SECRET"), "HS256 signing secret (must match the API)")
		email       = flag.String("email", "dev@tasknest.local", "User email")
		name        = flag.String("name", "Dev User", "Display name")
		password    = flag.String("password", os.Getenv("BOOTSTRAP_PASSWORD"), "Password for a newly created user")
		ttl         = flag.Duration("ttl", 24*time.Hour, "Token lifetime")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	if len(*jwtSecret) < 32 {
		fmt.Fprintln(os.Stderr, "JWT_SECRET of at least 32 bytes is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := repository.Migrate(*databaseURL); err != nil {
		fmt.Fprintln(os.Stderr, "migrate database:", err)
		os.Exit(1)
	}

	repo, err := repository.New(ctx, *databaseURL, repository.PoolOptions{MaxConns: 1})
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	user, created, err := ensureUser(ctx, repo, strings.ToLower(strings.TrimSpace(*email)), *name, *password)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	issued, err := auth.NewTokenIssuer(*jwtSecret, *ttl).Issue(user.ID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue token:", err)
		os.Exit(1)
	}

	out := output{
		UserID:    user.ID,
		Email:     user.Email,
		Created:   created,
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Token)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

// ensureUser returns the user registered under email, creating it when absent.
func ensureUser(ctx context.Context, repo *repository.Repository, email, name, password string) (*model.User, bool, error) {
	existing, err := repo.GetUserByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, false, fmt.Errorf("look up user: %w", err)
	}

	if len(password) < 8 {
		return nil, false, errors.New("a password of at least 8 characters is required to create the user")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, false, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           ulid.Make().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	return user, true, nil
}
