package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const revocationPrefix = "portal:session:revoked:"

// Revocations remembers signed-out session IDs until their cookies expire.
// A nil Revocations, or one without a client, records nothing.
type Revocations struct {
	client *redis.Client
}

func NewRevocations(client *redis.Client) *Revocations {
	return &Revocations{client: client}
}

func (r *Revocations) enabled() bool {
	return r != nil && r.client != nil
}

// Revoke marks sessionID revoked until expiresAt.
func (r *Revocations) Revoke(ctx context.Context, sessionID string, expiresAt time.Time) error {
	if !r.enabled() || sessionID == "" {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revocationPrefix+sessionID, "1", ttl).Err()
}

func (r *Revocations) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	if !r.enabled() || sessionID == "" {
		return false, nil
	}
	err := r.client.Get(ctx, revocationPrefix+sessionID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Ping checks the backing Redis, if any.
func (r *Revocations) Ping(ctx context.Context) error {
	if !r.enabled() {
		return nil
	}
	return r.client.Ping(ctx).Err()
}
