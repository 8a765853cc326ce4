// Package ban provides a Redis-backed ban cache mirroring the relational
// account lock. The cache lets the ingestion endpoint reject submissions
// from banned users without touching the record store. Records are simple
// key-value pairs:
//
//	Key:   ban:user:<user_id>
//	Value: <reason>
//	TTL:   ban duration (0 = no expiry)
//
// The relational lock remains the source of truth; losing a cache entry only
// costs one extra trip through the pipeline. Callers should fail open on
// Redis errors.
package ban

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Prefix is the Redis key prefix for ban records.
const Prefix = "ban:user:"

// Store manages ban records in Redis.
type Store struct {
	client   *redis.Client
	duration time.Duration
}

// NewStore creates a ban store using the provided Redis client. duration is
// how long a ban entry lives in the cache; zero means no expiry.
func NewStore(client *redis.Client, duration time.Duration) *Store {
	return &Store{client: client, duration: duration}
}

// Ban records a ban for a user with the given reason.
func (s *Store) Ban(ctx context.Context, userID, reason string) error {
	if err := s.client.Set(ctx, Prefix+userID, reason, s.duration).Err(); err != nil {
		return fmt.Errorf("ban: set %s: %w", userID, err)
	}
	return nil
}

// IsBanned checks whether a user is currently banned. Returns the ban reason
// when banned. Redis errors are returned so callers can decide how to handle
// them; the recommended policy is fail-open.
func (s *Store) IsBanned(ctx context.Context, userID string) (bool, string, error) {
	reason, err := s.client.Get(ctx, Prefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("ban: get %s: %w", userID, err)
	}
	return true, reason, nil
}

// Unban removes a ban entry immediately.
func (s *Store) Unban(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, Prefix+userID).Err(); err != nil {
		return fmt.Errorf("ban: del %s: %w", userID, err)
	}
	return nil
}
