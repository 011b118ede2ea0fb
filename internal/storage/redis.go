package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	logx "castbot/pkg/logx"
)

const redisAuditMax = 1000

// redisStore keeps subscribers in a sorted set scored by subscription time
// (unix millis) and the audit log in a capped list, newest first.
type redisStore struct {
	client   atomic.Pointer[redis.Client]
	log      logx.Logger
	subsKey  string
	auditKey string
}

func openRedis(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for redis driver")
	}
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return newRedisStore(client, cfg.Prefix, log), nil
}

func newRedisStore(client *redis.Client, prefix string, log logx.Logger) *redisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "castbot:"
	}
	s := &redisStore{
		log:      log,
		subsKey:  prefix + "subscribers",
		auditKey: prefix + "audit",
	}
	s.client.Store(client)
	return s
}

func (s *redisStore) Close() error {
	client := s.client.Swap(nil)
	if client == nil {
		return nil
	}
	return client.Close()
}

func (s *redisStore) AddSubscriber(ctx context.Context, id string) (bool, error) {
	client := s.client.Load()
	if client == nil {
		return false, ErrDisabled
	}
	id, err := NormalizeID(id)
	if err != nil {
		return false, err
	}
	n, err := client.ZAddNX(ctx, s.subsKey, redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: id,
	}).Result()
	if err != nil {
		return false, fmt.Errorf("add subscriber: %w", err)
	}
	return n > 0, nil
}

func (s *redisStore) RemoveSubscriber(ctx context.Context, id string) (bool, error) {
	client := s.client.Load()
	if client == nil {
		return false, ErrDisabled
	}
	id, err := NormalizeID(id)
	if err != nil {
		return false, err
	}
	n, err := client.ZRem(ctx, s.subsKey, id).Result()
	if err != nil {
		return false, fmt.Errorf("remove subscriber: %w", err)
	}
	return n > 0, nil
}

func (s *redisStore) ListSubscribers(ctx context.Context) ([]string, error) {
	client := s.client.Load()
	if client == nil {
		return nil, ErrDisabled
	}
	ids, err := client.ZRange(ctx, s.subsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return ids, nil
}

func (s *redisStore) CountSubscribers(ctx context.Context) (int, error) {
	client := s.client.Load()
	if client == nil {
		return 0, ErrDisabled
	}
	n, err := client.ZCard(ctx, s.subsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count subscribers: %w", err)
	}
	return int(n), nil
}

func (s *redisStore) HasSubscriber(ctx context.Context, id string) (bool, error) {
	client := s.client.Load()
	if client == nil {
		return false, ErrDisabled
	}
	id, err := NormalizeID(id)
	if err != nil {
		return false, err
	}
	err = client.ZScore(ctx, s.subsKey, id).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *redisStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	client := s.client.Load()
	if client == nil {
		return ErrDisabled
	}
	stampAudit(&e)
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, s.auditKey, b)
		p.LTrim(ctx, s.auditKey, 0, redisAuditMax-1)
		return nil
	})
	return err
}
