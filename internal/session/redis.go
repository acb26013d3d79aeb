package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

const (
	redisKeyPrefix = "kotae:session:"
	maxTxRetries   = 10
)

// RedisStore keeps sessions in Redis so several server processes can share
// them. Keys expire after the timeout; updates use optimistic transactions.
type RedisStore struct {
	rdb    *redis.Client
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int, opts Options, options ...Option) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	set := applyOptions(options)
	return &RedisStore{rdb: rdb, opts: opts.withDefaults(), logger: set.logger, now: set.now}, nil
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func (s *RedisStore) load(ctx context.Context, get func(context.Context, string) *redis.StringCmd, id string, now time.Time) (State, bool, error) {
	data, err := get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return newState(id, now), true, nil
	}
	if err != nil {
		return State{}, false, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("discarding unreadable session", zap.String("session_id", id), zap.Error(err))
		return newState(id, now), true, nil
	}
	if now.Sub(st.LastActivity) > s.opts.Timeout {
		return newState(id, now), true, nil
	}
	return st, false, nil
}

// update runs fn on the session inside a WATCH transaction and writes the result.
func (s *RedisStore) update(ctx context.Context, id string, fn func(st *State, now time.Time)) (*State, error) {
	key := redisKey(id)
	var out *State
	txf := func(tx *redis.Tx) error {
		now := s.now()
		st, created, err := s.load(ctx, tx.Get, id, now)
		if err != nil {
			return err
		}
		if created {
			s.logger.Debug("session created", zap.String("session_id", id))
		}
		fn(&st, now)
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, s.opts.Timeout)
			return nil
		})
		if err == nil {
			out = st.clone()
		}
		return err
	}
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", id, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("session %s: too much contention", id)
}

// GetOrCreate implements Store.
func (s *RedisStore) GetOrCreate(ctx context.Context, id string) (*State, error) {
	return s.update(ctx, id, func(st *State, now time.Time) {
		st.LastActivity = now
	})
}

// RecordExchange implements Store.
func (s *RedisStore) RecordExchange(ctx context.Context, id string, item *models.CatalogItem, question, answer string) error {
	_, err := s.update(ctx, id, func(st *State, now time.Time) {
		st.record(item, question, answer, now, s.opts.MaxHistory)
	})
	return err
}

// EvictExpired implements Store. Redis expires keys itself, so there is nothing to sweep.
func (s *RedisStore) EvictExpired(context.Context) (int, error) {
	return 0, nil
}

// Count implements Store.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n := 0
	iter := s.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
