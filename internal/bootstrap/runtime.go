// Package bootstrap connects the runtime dependencies shared by the commands.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"chatapp/internal/cache"
	"chatapp/internal/config"
	"chatapp/internal/database"
	"chatapp/internal/middleware"
	"chatapp/internal/observability"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// InitRuntime connects to DB and Redis. The Redis client is nil when Redis is
// unreachable, unless the redis lock backend needs it.
func InitRuntime(cfg *config.Config) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Init Redis (may result in nil client if unreachable)
	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()
	if r == nil && cfg.CommentLockBackend == "redis" {
		return nil, nil, fmt.Errorf("COMMENT_LOCK_BACKEND=redis but Redis at %s is unreachable", cfg.RedisURL)
	}

	return db, r, nil
}

// InitObservability configures the process logger and tracer from cfg and
// returns the tracer shutdown function.
func InitObservability(cfg *config.Config, version string) (func(), error) {
	middleware.ConfigureLogger(cfg.Env, cfg.LogLevel)

	shutdown, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    cfg.TracingServiceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.TracingEndpoint,
		SamplerRatio:   cfg.TracingSampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			middleware.Logger.Warn("tracer shutdown failed", "error", err)
		}
	}, nil
}
