package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "ingest:msg:"

// IdempotencySet is the time-windowed record of message identifiers already
// handled. Membership check and insertion are one atomic SET NX.
type IdempotencySet struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencySet(rdb *redis.Client, ttl time.Duration) *IdempotencySet {
	return &IdempotencySet{rdb: rdb, ttl: ttl}
}

// Register records the message identifier. Returns true when the identifier
// was unseen (the caller owns processing it), false on replay.
func (s *IdempotencySet) Register(ctx context.Context, messageID string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, idempotencyKeyPrefix+messageID, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency register: %w", err)
	}
	return ok, nil
}

// Release removes a registered identifier so an upstream retry can be
// processed. Called when the event was registered but not durably handled.
func (s *IdempotencySet) Release(ctx context.Context, messageID string) error {
	if err := s.rdb.Del(ctx, idempotencyKeyPrefix+messageID).Err(); err != nil {
		return fmt.Errorf("idempotency release: %w", err)
	}
	return nil
}
