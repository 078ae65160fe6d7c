// Package idempotency tracks processed events in Redis so redelivered
// messages are skipped. The persistence layer stays idempotent on its own
// (conditional transitions, reservation ledger); this set is the cheap
// first line, not the only one.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// EventKey keys by the dispatcher-assigned event id, stable across
// redeliveries and partition reassignment.
func (s *Store) EventKey(eventID string) string {
	return "idem:evt:" + eventID
}

// OffsetKey is the fallback for messages without an event_id header.
func (s *Store) OffsetKey(topic string, partition int, offset int64) string {
	return fmt.Sprintf("idem:%s:%d:%d", topic, partition, offset)
}

// Seen reports whether key was already marked processed. It never writes:
// marking is a separate step taken only once the message is resolved, so a
// crash mid-handling leaves the event unmarked and redelivery handles it.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records key as processed.
func (s *Store) Mark(ctx context.Context, key string) error {
	return s.rdb.SetNX(ctx, key, "1", s.ttl).Err()
}
