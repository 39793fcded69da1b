package payref

import (
	"context"

	"github.com/redis/go-redis/v9"

	id "contrava/pkg/domain"
)

// Redis key prefix for payment reference reservations.
const reservationKeyPrefix = "payref:"

// RedisStore is the Redis-backed Store for distributed deployments where
// multiple instances must share reservation state.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed reservation store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Reserve claims (recordID, reference) with SETNX so exactly one of any set
// of concurrent claimants wins. The TTL keeps an orphaned reservation from
// blocking the reference forever.
func (s *RedisStore) Reserve(ctx context.Context, recordID id.RecordID, reference string) (bool, error) {
	key := reservationKeyPrefix + reservationKey(recordID, reference)
	return s.client.SetNX(ctx, key, "1", ReservationTTL).Result()
}

// Release frees a reservation.
func (s *RedisStore) Release(ctx context.Context, recordID id.RecordID, reference string) error {
	key := reservationKeyPrefix + reservationKey(recordID, reference)
	return s.client.Del(ctx, key).Err()
}
