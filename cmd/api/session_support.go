package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	redis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/yourusername/debt-tracer/internal/config"
	"github.com/yourusername/debt-tracer/internal/session"
)

const redisPingTimeout = 3 * time.Second

func setupRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("key", "REDIS_URL").Wrap(err)
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").Wrap(err)
	}
	return client, nil
}

// setupSessionStore はクッキー署名鍵と Redis バックエンドでセッションストアを組み立てます。
func setupSessionStore(cfg *config.Config, rdb redis.Cmdable, logger *slog.Logger) *session.Store {
	key := []byte(cfg.SessionSecret)
	if len(key) == 0 {
		// 開発用。再起動するとすべてのセッションが無効になる
		logger.Warn("SESSION_SECRET is empty, using a random signing key")
		key = securecookie.GenerateRandomKey(64)
	}

	store := session.NewStore(session.NewRedisBackend(rdb), cfg.SessionTTL(), key)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	return store
}
