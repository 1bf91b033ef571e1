// Package store mirrors oracle spot observations into Redis so other services
// can read the desk's view of the market without calling the chain.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

// ErrNotFound is returned when a key is missing or expired.
var ErrNotFound = errors.New("store: not found")

const spotKeyPrefix = "spot:"

// SpotKey is the Redis key holding the latest observation for pair.
func SpotKey(pair model.Pair) string {
	return spotKeyPrefix + string(pair)
}

// Store defines the contract for the spot mirror.
type Store interface {
	SaveSpot(ctx context.Context, obs model.SpotObservation) error
	GetSpot(ctx context.Context, pair model.Pair) (*model.SpotObservation, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	HealthCheck(ctx context.Context) error
	Close() error
}

type RedisStore struct {
	redis   *redis.Client
	spotTTL time.Duration
	logger  *zap.Logger
}

// NewRedis connects and pings Redis.
func NewRedis(addr string, db int, password string, spotTTL time.Duration, logger *zap.Logger) (*RedisStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewWithClient(rdb, spotTTL, logger), nil
}

func NewWithClient(rdb *redis.Client, spotTTL time.Duration, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{redis: rdb, spotTTL: spotTTL, logger: logger}
}

// SaveSpot writes obs under spot:<pair>. Unavailable observations are stored
// too so readers see the failure rather than a stale rate.
func (s *RedisStore) SaveSpot(ctx context.Context, obs model.SpotObservation) error {
	if err := s.SetJSON(ctx, SpotKey(obs.Pair), obs, s.spotTTL); err != nil {
		s.logger.Warn("store.save_spot_failed", zap.String("pair", string(obs.Pair)), zap.Error(err))
		return err
	}
	return nil
}

func (s *RedisStore) GetSpot(ctx context.Context, pair model.Pair) (*model.SpotObservation, error) {
	var obs model.SpotObservation
	if err := s.GetJSON(ctx, SpotKey(pair), &obs); err != nil {
		return nil, err
	}
	return &obs, nil
}

func (s *RedisStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

func (s *RedisStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
