package cache

import (
	"context"
	"fmt"
	"time"
)

const revokedKeyPrefix = "auth:revoked:"

func revokedKey(tokenID string) string {
	return revokedKeyPrefix + tokenID
}

// RevokeToken marks tokenID as revoked until expiresAt. A token that has
// already expired needs no entry.
func (c *Cache) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(c.now())
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, revokedKey(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID has been revoked.
func (c *Cache) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := c.client.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}
