// internal/database/database.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"serial-gateway/internal/config"
)

// DB wraps the journal database connection pool
type DB struct {
	*sql.DB
	config *config.JournalConfig
	logger *zap.Logger
}

// NewConnection opens and verifies a PostgreSQL connection pool
func NewConnection(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.GetJournalDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.Journal.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Journal.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Journal.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database %s@%s:%d: %w",
			cfg.Journal.DBName, cfg.Journal.Host, cfg.Journal.Port, err)
	}

	logger.Info("Database connection established",
		zap.String("host", cfg.Journal.Host),
		zap.Int("port", cfg.Journal.Port),
		zap.String("database", cfg.Journal.DBName),
	)

	return &DB{
		DB:     sqlDB,
		config: &cfg.Journal,
		logger: logger,
	}, nil
}

// HealthCheck pings the database
func (db *DB) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// GetStats returns connection pool statistics
func (db *DB) GetStats() sql.DBStats {
	return db.Stats()
}

// Close closes the connection pool
func (db *DB) Close() error {
	db.logger.Info("Closing database connection")
	return db.DB.Close()
}
