package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

const (
	sessionKeyPrefix = "session:"
)

// Backend はセッションID をキーにフィールドを保存する外部ストアです。
type Backend interface {
	// Load は保存済みのフィールドを返します。存在しない(期限切れ含む)場合は (nil, nil) です。
	Load(ctx context.Context, id string) (map[string]any, error)
	Save(ctx context.Context, id string, values map[string]any, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// RedisBackend はセッション状態を Redis に保存します。
type RedisBackend struct {
	rdb redis.Cmdable
}

// NewRedisBackend は RedisBackend を作成します。
func NewRedisBackend(rdb redis.Cmdable) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

// Load はセッション情報を取得します。
func (b *RedisBackend) Load(ctx context.Context, id string) (map[string]any, error) {
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}
	data, err := b.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, oops.Code("SESSION_BACKEND_FAILED").
			With("operation", "load session").
			Wrap(err)
	}
	values := map[string]any{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, oops.Code("SESSION_DECODE_FAILED").
			With("operation", "decode session payload").
			Wrap(fmt.Errorf("%w: %w", ErrDecode, err))
	}
	return values, nil
}

// Save はセッション情報を TTL 付きで保存します。
func (b *RedisBackend) Save(ctx context.Context, id string, values map[string]any, ttl time.Duration) error {
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return oops.Code("SESSION_ENCODE_FAILED").Wrap(err)
	}
	if err := b.rdb.Set(ctx, sessionKey(id), payload, ttl).Err(); err != nil {
		return oops.Code("SESSION_BACKEND_FAILED").
			With("operation", "save session").
			Wrap(err)
	}
	return nil
}

// Delete はセッションを削除します。
func (b *RedisBackend) Delete(ctx context.Context, id string) error {
	if err := b.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return oops.Code("SESSION_BACKEND_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}
