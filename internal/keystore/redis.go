// Package keystore persists the API key pool in Redis so every replica
// rotates the same cursor.
package keystore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"symptom-triage/internal/llm"
)

const DefaultKey = "triage:api_keys"

// Options configures the Redis connection.
type Options struct {
	Address  string
	Password string
	DB       int
}

// NewClient opens a Redis client with conservative timeouts.
func NewClient(opts Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})
}

// RedisStore implements llm.PoolStore on a single Redis hash holding the key
// list as JSON and the cursor as an integer.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore stores the pool under key, or DefaultKey when key is empty.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultKey
	}
	return &RedisStore{client: client, key: key}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Load reads the pool state.  A missing key is an empty pool.
func (s *RedisStore) Load(ctx context.Context) (llm.PoolState, error) {
	var st llm.PoolState
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return st, fmt.Errorf("load key pool: %w", err)
	}
	if raw, ok := fields["keys"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &st.Keys); err != nil {
			return st, fmt.Errorf("decode key pool: %w", err)
		}
	}
	if raw, ok := fields["index"]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			st.Index = n
		}
	}
	return st, nil
}

// Save writes the keys as a JSON field and the index beside them.
func (s *RedisStore) Save(ctx context.Context, st llm.PoolState) error {
	keys, err := json.Marshal(st.Keys)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key, "keys", string(keys), "index", st.Index).Err(); err != nil {
		return fmt.Errorf("save key pool: %w", err)
	}
	return nil
}
