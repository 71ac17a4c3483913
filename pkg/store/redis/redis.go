package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Layr-Labs/heartbeat-go/pkg/store"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixBeat        = "hb:beat:"
	keySchemaVersion     = "hb:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Key set for listing operations (Redis doesn't support prefix iteration natively)
	keySetBeats = "hb:beats:index"
)

// RedisStore is a production-ready beat store using Redis.
// Provides durable, distributed storage suitable for cloud-native deployments.
type RedisStore struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string // Custom prefix for all keys
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys (for
	// multi-tenant setups). If set, this prefix is prepended to all keys,
	// e.g. "myapp:" results in keys like "myapp:hb:beat:<id>". If empty,
	// keys use the default "hb:" prefix.
	KeyPrefix string
}

// NewRedisStore creates a new Redis-backed beat store.
func NewRedisStore(cfg *RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	opts := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rs := &RedisStore{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rs.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis beat store initialized", "address", cfg.Address, "db", cfg.DB)

	return rs, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisStore) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

// initSchema initializes or validates the schema version
func (r *RedisStore) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

// SaveBeat persists a beat record.
func (r *RedisStore) SaveBeat(record *store.BeatRecord) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("store is closed")
	}

	if err := store.ValidateRecord(record); err != nil {
		return err
	}

	data, err := store.MarshalBeatRecord(record)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.prefixKey(keyPrefixBeat+record.ID), data, 0)
	pipe.SAdd(ctx, r.prefixKey(keySetBeats), record.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save beat %s: %w", record.ID, err)
	}

	return nil
}

// LoadBeat retrieves a beat record by ID.
func (r *RedisStore) LoadBeat(id string) (*store.BeatRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("store is closed")
	}

	ctx := context.Background()
	data, err := r.client.Get(ctx, r.prefixKey(keyPrefixBeat+id)).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load beat %s: %w", id, err)
	}

	return store.UnmarshalBeatRecord(data)
}

// ListBeats returns all beat records sorted by ID.
func (r *RedisStore) ListBeats() ([]*store.BeatRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("store is closed")
	}

	ctx := context.Background()
	ids, err := r.client.SMembers(ctx, r.prefixKey(keySetBeats)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list beats: %w", err)
	}
	sort.Strings(ids)

	records := make([]*store.BeatRecord, 0, len(ids))
	for _, id := range ids {
		data, err := r.client.Get(ctx, r.prefixKey(keyPrefixBeat+id)).Bytes()
		if err == redis.Nil {
			// Index entry without a record; skip stale member
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load beat %s: %w", id, err)
		}
		record, err := store.UnmarshalBeatRecord(data)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

// DeleteBeat removes a beat record by ID.
func (r *RedisStore) DeleteBeat(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("store is closed")
	}

	ctx := context.Background()
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.prefixKey(keyPrefixBeat+id))
	pipe.SRem(ctx, r.prefixKey(keySetBeats), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete beat %s: %w", id, err)
	}

	return nil
}

// UpdateState replaces the stored challenge state of a beat.
func (r *RedisStore) UpdateState(id string, state json.RawMessage) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("store is closed")
	}

	ctx := context.Background()
	key := r.prefixKey(keyPrefixBeat + id)
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return fmt.Errorf("beat %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to load beat %s: %w", id, err)
	}

	record, err := store.UnmarshalBeatRecord(data)
	if err != nil {
		return err
	}
	record.State = state

	updated, err := store.MarshalBeatRecord(record)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, updated, 0).Err(); err != nil {
		return fmt.Errorf("failed to update beat %s: %w", id, err)
	}

	return nil
}

// Close cleanly shuts down the store.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	r.logger.Sugar().Infow("Redis beat store closed")
	return nil
}

// HealthCheck verifies the store is operational.
func (r *RedisStore) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("store is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

var _ store.IBeatStore = (*RedisStore)(nil)
