package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "nudged/pkg/logx"
)

// Redis key layout. Stamps live in one hash (field = throttle key,
// value = unix millis); settings are a single string; the delivery log is
// a capped list.
const (
	redisStampsKey     = "nudged:stamps"
	redisSettingsKey   = "nudged:settings"
	redisDeliveryKey   = "nudged:delivery"
	redisDeliveryLimit = 1000
)

type redisStore struct {
	rdb *redis.Client
	log logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("storage.addr is required for redis driver")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &redisStore{rdb: rdb, log: log}, nil
}

func (s *redisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *redisStore) PutStamp(ctx context.Context, key string, at time.Time) error {
	if s == nil || s.rdb == nil {
		return ErrDisabled
	}
	if key == "" {
		return nil
	}
	return s.rdb.HSet(ctx, redisStampsKey, key, at.UnixMilli()).Err()
}

func (s *redisStore) LoadStamps(ctx context.Context) (map[string]time.Time, error) {
	if s == nil || s.rdb == nil {
		return nil, ErrDisabled
	}
	raw, err := s.rdb.HGetAll(ctx, redisStampsKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(raw))
	for k, v := range raw {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = time.UnixMilli(ms)
	}
	return out, nil
}

func (s *redisStore) PutSettings(ctx context.Context, doc []byte) error {
	if s == nil || s.rdb == nil {
		return ErrDisabled
	}
	return s.rdb.Set(ctx, redisSettingsKey, doc, 0).Err()
}

func (s *redisStore) GetSettings(ctx context.Context) ([]byte, bool, error) {
	if s == nil || s.rdb == nil {
		return nil, false, ErrDisabled
	}
	b, err := s.rdb.Get(ctx, redisSettingsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *redisStore) AppendDelivery(ctx context.Context, e DeliveryEntry) error {
	if s == nil || s.rdb == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, redisDeliveryKey, b)
	pipe.LTrim(ctx, redisDeliveryKey, -redisDeliveryLimit, -1)
	_, err = pipe.Exec(ctx)
	return err
}
