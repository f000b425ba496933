package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxRetries   int
	RetryDelay   time.Duration
}

// NewPostgresDB keeps dialing until the database answers a ping or the
// retry budget runs out. Containers commonly start before postgres is ready.
func NewPostgresDB(ctx context.Context, cfg Config, log *zap.Logger) (*sqlx.DB, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		log.Info("connecting to database",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxRetries),
		)

		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
		if err == nil {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
			db.SetMaxIdleConns(cfg.MaxIdleConns)
			db.SetConnMaxLifetime(5 * time.Minute)
			log.Info("database connected")
			return db, nil
		}
		lastErr = err

		log.Warn("database not ready", zap.Error(err), zap.Duration("retry_in", cfg.RetryDelay))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryDelay):
		}
	}

	return nil, fmt.Errorf("connect database after %d attempts: %w", cfg.MaxRetries, lastErr)
}
