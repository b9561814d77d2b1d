package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "clistbot:audit"

// redisStore pushes entries onto a redis list, newest last.
type redisStore struct {
	rdb    *redis.Client
	key    string
	maxLen int64
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("storage.redis_addr is required for redis driver")
	}
	key := strings.TrimSpace(cfg.RedisKey)
	if key == "" {
		key = defaultRedisKey
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	log.Debug("redis audit store ready", logx.String("addr", addr), logx.String("key", key))
	return &redisStore{rdb: rdb, key: key, maxLen: cfg.RedisMaxLen, log: log}, nil
}

func (s *redisStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if s.maxLen <= 0 {
		return s.rdb.RPush(ctx, s.key, data).Err()
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, s.key, data)
		p.LTrim(ctx, s.key, -s.maxLen, -1)
		return nil
	})
	return err
}

func (s *redisStore) Close() error { return s.rdb.Close() }
