package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
)

const (
	keyDeliveryPrefix = "dispatch:delivery:"
	keyRecent         = "dispatch:deliveries:recent"
	keyEndpointPrefix = "dispatch:deliveries:endpoint:"
	keyRetry          = "dispatch:deliveries:retry"
	keyFailed         = "dispatch:deliveries:failed"
)

// RedisStore keeps delivery records as JSON blobs in Redis, expiring
// terminal records after a TTL. Sorted-set indexes keyed by creation and
// retry time back the newest-first listing and the retry scan.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed delivery store. ttl bounds how long
// completed records remain queryable.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{redis: client, ttl: ttl}
}

func (s *RedisStore) Create(ctx context.Context, d *models.Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, keyDeliveryPrefix+d.ID, data, 0)
	score := float64(d.CreatedAt.UnixMilli())
	pipe.ZAdd(ctx, keyRecent, redis.Z{Score: score, Member: d.ID})
	pipe.ZAdd(ctx, keyEndpointPrefix+d.EndpointID, redis.Z{Score: score, Member: d.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store delivery: %w", err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, d *models.Delivery) error {
	exists, err := s.redis.Exists(ctx, keyDeliveryPrefix+d.ID).Result()
	if err != nil {
		return fmt.Errorf("check delivery: %w", err)
	}
	if exists == 0 {
		return ErrDeliveryNotFound
	}

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}

	pipe := s.redis.TxPipeline()
	if d.Status.Terminal() {
		// Terminal records age out; the indexes are cleaned lazily on read.
		pipe.Set(ctx, keyDeliveryPrefix+d.ID, data, s.ttl)
		pipe.ZRem(ctx, keyRetry, d.ID)
		if d.Status == models.DeliveryFailed {
			pipe.SAdd(ctx, keyFailed, d.ID)
			pipe.Expire(ctx, keyFailed, s.ttl)
		} else {
			pipe.SRem(ctx, keyFailed, d.ID)
		}
	} else {
		pipe.Set(ctx, keyDeliveryPrefix+d.ID, data, 0)
		pipe.SRem(ctx, keyFailed, d.ID)
		if d.Status == models.DeliveryRetrying && d.NextRetryAt != nil {
			pipe.ZAdd(ctx, keyRetry, redis.Z{
				Score:  float64(d.NextRetryAt.UnixMilli()),
				Member: d.ID,
			})
		} else {
			pipe.ZRem(ctx, keyRetry, d.ID)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Delivery, error) {
	data, err := s.redis.Get(ctx, keyDeliveryPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrDeliveryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery: %w", err)
	}

	var d models.Delivery
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, fmt.Errorf("unmarshal delivery: %w", err)
	}
	return &d, nil
}

func (s *RedisStore) List(ctx context.Context, endpointID string, limit int) ([]*models.Delivery, error) {
	if limit <= 0 {
		limit = 100
	}

	key := keyRecent
	if endpointID != "" {
		key = keyEndpointPrefix + endpointID
	}

	ids, err := s.redis.ZRevRange(ctx, key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return s.fetch(ctx, key, ids)
}

func (s *RedisStore) DueRetries(ctx context.Context, now time.Time) ([]*models.Delivery, error) {
	ids, err := s.redis.ZRangeByScore(ctx, keyRetry, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan retries: %w", err)
	}
	return s.fetch(ctx, keyRetry, ids)
}

func (s *RedisStore) Failed(ctx context.Context, endpointID string) ([]*models.Delivery, error) {
	ids, err := s.redis.SMembers(ctx, keyFailed).Result()
	if err != nil {
		return nil, fmt.Errorf("list failed deliveries: %w", err)
	}

	all, err := s.fetch(ctx, "", ids)
	if err != nil {
		return nil, err
	}
	if endpointID == "" {
		return all, nil
	}

	var out []*models.Delivery
	for _, d := range all {
		if d.EndpointID == endpointID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *RedisStore) PurgeEndpoint(ctx context.Context, endpointID string) (int, error) {
	key := keyEndpointPrefix + endpointID
	ids, err := s.redis.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("list endpoint deliveries: %w", err)
	}

	purged := 0
	pipe := s.redis.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, keyDeliveryPrefix+id)
		pipe.ZRem(ctx, keyRecent, id)
		pipe.ZRem(ctx, keyRetry, id)
		pipe.SRem(ctx, keyFailed, id)
		purged++
	}
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("purge endpoint deliveries: %w", err)
	}
	return purged, nil
}

func (s *RedisStore) All(ctx context.Context) ([]*models.Delivery, error) {
	ids, err := s.redis.ZRange(ctx, keyRecent, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return s.fetch(ctx, keyRecent, ids)
}

func (s *RedisStore) Close() error {
	return s.redis.Close()
}

// fetch loads delivery blobs by id, lazily removing index members whose
// record has expired. indexKey may be empty when no cleanup applies.
func (s *RedisStore) fetch(ctx context.Context, indexKey string, ids []string) ([]*models.Delivery, error) {
	out := make([]*models.Delivery, 0, len(ids))
	for _, id := range ids {
		d, err := s.Get(ctx, id)
		if errors.Is(err, ErrDeliveryNotFound) {
			if indexKey != "" {
				s.redis.ZRem(ctx, indexKey, id)
			}
			s.redis.SRem(ctx, keyFailed, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
