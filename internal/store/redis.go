package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"infra-chatops/internal/workflow"

	"github.com/redis/go-redis/v9"
)

const maxIndexed = 1000

// RedisStore keeps reports as JSON strings with a TTL and a sorted-set index
// of instance ids by start time.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) reportKey(id string) string { return fmt.Sprintf("%s:report:%s", s.prefix, id) }

func (s *RedisStore) indexKey() string { return s.prefix + ":reports" }

func (s *RedisStore) Save(ctx context.Context, r *workflow.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := s.client.Set(ctx, s.reportKey(r.InstanceID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save report %s: %w", r.InstanceID, err)
	}
	score := float64(r.StartedAt.UnixMilli())
	if err := s.client.ZAdd(ctx, s.indexKey(), redis.Z{Score: score, Member: r.InstanceID}).Err(); err != nil {
		return fmt.Errorf("index report %s: %w", r.InstanceID, err)
	}
	if err := s.client.ZRemRangeByRank(ctx, s.indexKey(), 0, -maxIndexed-1).Err(); err != nil {
		return fmt.Errorf("trim report index: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*workflow.Report, error) {
	data, err := s.client.Get(ctx, s.reportKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", id, err)
	}
	var r workflow.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &r, nil
}

func (s *RedisStore) Recent(ctx context.Context, limit int) ([]string, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return ids, nil
}
