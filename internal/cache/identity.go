package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tasknest/tasknest/internal/model"
)

const (
	identityKeyPrefix = "auth:user:"
	// IdentityTTL bounds how long a changed user can linger in cache.
	IdentityTTL = 5 * time.Minute
	// deletedMarker is stored in place of a deleted user.
	deletedMarker = "deleted"
)

// ErrUserDeleted is returned by GetUser for a user marked deleted.
var ErrUserDeleted = errors.New("user deleted")

// cachedUser is the Redis representation of a user. Credentials are never cached.
type cachedUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func identityKey(userID string) string {
	return identityKeyPrefix + userID
}

func encodeUser(user *model.User) ([]byte, error) {
	return json.Marshal(cachedUser{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		CreatedAt: user.CreatedAt,
	})
}

func decodeUser(data []byte) (*model.User, error) {
	var cached cachedUser
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	if cached.ID == "" {
		return nil, errors.New("cached user has no id")
	}
	return &model.User{
		ID:        cached.ID,
		Email:     cached.Email,
		Name:      cached.Name,
		CreatedAt: cached.CreatedAt,
	}, nil
}

// GetUser returns the cached user for userID, or ErrCacheMiss.
// Corrupted entries are treated as misses.
func (c *Cache) GetUser(ctx context.Context, userID string) (*model.User, error) {
	data, err := c.client.Get(ctx, identityKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	if string(data) == deletedMarker {
		return nil, ErrUserDeleted
	}

	user, err := decodeUser(data)
	if err != nil {
		return nil, ErrCacheMiss
	}
	return user, nil
}

// SetUser caches user for IdentityTTL unless an entry already exists.
// A lookup that raced an account deletion cannot overwrite the deletion mark.
func (c *Cache) SetUser(ctx context.Context, user *model.User) error {
	data, err := encodeUser(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return c.client.SetNX(ctx, identityKey(user.ID), data, IdentityTTL).Err()
}

// DeleteUser replaces the cached entry for userID with a deletion mark
// that lives for IdentityTTL.
func (c *Cache) DeleteUser(ctx context.Context, userID string) error {
	return c.client.Set(ctx, identityKey(userID), deletedMarker, IdentityTTL).Err()
}
