// Package cache owns the shared Redis client. The notification queue and the
// per-user alert counters live there.
package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/config"
)

// Options builds client options from config. ok is false when Redis is not
// configured.
func Options(cfg *config.Config) (opts *redis.Options, ok bool) {
	host := strings.TrimSpace(cfg.RedisHost)
	if host == "" {
		return nil, false
	}

	opts = &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", host, cfg.RedisPort),
		Username:     strings.TrimSpace(cfg.RedisUser),
		Password:     cfg.RedisPassword,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	if strings.EqualFold(strings.TrimSpace(cfg.RedisScheme), "rediss") {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}
	return opts, true
}

// NewRedis returns nil when REDIS_HOST is unset; consumers treat a nil client
// as "scheduling disabled".
func NewRedis(lc fx.Lifecycle, cfg *config.Config, log *zap.SugaredLogger) (*redis.Client, error) {
	opts, ok := Options(cfg)
	if !ok {
		log.Infow("redis_disabled", "reason", "missing REDIS_HOST")
		return nil, nil
	}

	client := redis.NewClient(opts)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				_ = client.Close()
				return fmt.Errorf("redis ping failed: %w", err)
			}
			log.Infow("redis_connected", "addr", opts.Addr, "tls", opts.TLSConfig != nil)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := client.Close(); err != nil {
				log.Warnw("redis_close_failed", "err", err)
			}
			return nil
		},
	})

	return client, nil
}
