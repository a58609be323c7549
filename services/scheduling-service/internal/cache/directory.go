package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/scheduling"
	"github.com/redis/go-redis/v9"
)

// KV is the slice of the Redis client the cache uses.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Directory is a read-through Redis cache in front of another Directory.
// Only hits are cached. Redis failures fall through to the source.
type Directory struct {
	source scheduling.Directory
	kv     KV
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewDirectory(source scheduling.Directory, kv KV, ttl time.Duration, prefix string, logger *slog.Logger) *Directory {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "dir"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{source: source, kv: kv, ttl: ttl, prefix: prefix, logger: logger}
}

func (d *Directory) FindUser(ctx context.Context, id string) (model.User, error) {
	return readThrough(ctx, d, "user", id, d.source.FindUser)
}

func (d *Directory) FindClinic(ctx context.Context, id string) (model.Clinic, error) {
	return readThrough(ctx, d, "clinic", id, d.source.FindClinic)
}

func (d *Directory) FindProcedure(ctx context.Context, id string) (model.Procedure, error) {
	return readThrough(ctx, d, "procedure", id, d.source.FindProcedure)
}

// Invalidate drops one cached record, e.g. after an admin edit.
func (d *Directory) Invalidate(ctx context.Context, kind, id string) error {
	return d.kv.Del(ctx, d.key(kind, id)).Err()
}

func (d *Directory) key(kind, id string) string {
	return d.prefix + ":" + kind + ":" + id
}

func readThrough[T any](ctx context.Context, d *Directory, kind, id string, load func(context.Context, string) (T, error)) (T, error) {
	key := d.key(kind, id)
	raw, err := d.kv.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if jsonErr := json.Unmarshal(raw, &v); jsonErr == nil {
			return v, nil
		}
		d.logger.Warn("directory cache entry unreadable", "key", key)
	case !errors.Is(err, redis.Nil):
		d.logger.Warn("directory cache read failed", "key", key, "err", err)
	}

	v, err := load(ctx, id)
	if err != nil {
		return v, err
	}
	if raw, err := json.Marshal(v); err == nil {
		if err := d.kv.Set(ctx, key, raw, d.ttl).Err(); err != nil {
			d.logger.Warn("directory cache write failed", "key", key, "err", err)
		}
	}
	return v, nil
}
