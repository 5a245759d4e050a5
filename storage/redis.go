package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/ruteri/tee-vigil/interfaces"
)

const defaultRedisKeyPrefix = "vigil:secret:"

// RedisBackend stores each secret as a hash with one entry per field.
// Saves replace the hash inside MULTI/EXEC.
type RedisBackend struct {
	client      redis.UniversalClient
	keyPrefix   string
	log         *slog.Logger
	locationURI string
}

// NewRedisBackend creates a backend over client. keyPrefix is prepended to
// every key (e.g. "vigil:secret:").
func NewRedisBackend(client redis.UniversalClient, keyPrefix string, log *slog.Logger) *RedisBackend {
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	return &RedisBackend{
		client:      client,
		keyPrefix:   keyPrefix,
		log:         log,
		locationURI: "redis://",
	}
}

func (b *RedisBackend) key(id interfaces.SecretID) string {
	owner, name := recordPath(id)
	return b.keyPrefix + owner + ":" + name
}

func (b *RedisBackend) LoadRecord(ctx context.Context, id interfaces.SecretID) (interfaces.Record, error) {
	fields, err := b.client.HGetAll(ctx, b.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, interfaces.ErrRecordNotFound
	}

	rec := make(interfaces.Record, len(fields))
	for tag, value := range fields {
		if len(tag) != 1 || !interfaces.Field(tag[0]).Valid() {
			return nil, fmt.Errorf("invalid field tag %q in %s", tag, b.key(id))
		}
		rec[interfaces.Field(tag[0])] = []byte(value)
	}
	return rec, nil
}

func (b *RedisBackend) SaveRecord(ctx context.Context, id interfaces.SecretID, rec interfaces.Record) error {
	if len(rec) == 0 {
		return errors.New("refusing to save an empty record")
	}

	values := make(map[string]any, len(rec))
	for f, v := range rec {
		values[string(rune(f))] = v
	}

	key := b.key(id)
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

func (b *RedisBackend) DeleteRecord(ctx context.Context, id interfaces.SecretID) error {
	if err := b.client.Del(ctx, b.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

func (b *RedisBackend) Available(ctx context.Context) bool {
	if err := b.client.Ping(ctx).Err(); err != nil {
		b.log.Debug("Redis backend unavailable", "err", err)
		return false
	}
	return true
}

func (b *RedisBackend) Name() string {
	return "redis"
}

func (b *RedisBackend) LocationURI() string {
	return b.locationURI
}
