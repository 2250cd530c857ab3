// Package postgres stores the descriptor gallery in PostgreSQL with the pgvector extension.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceproc/internal/config"
)

// ErrNoDatabase is returned when a command needs the gallery database and none is configured.
var ErrNoDatabase = errors.New("DATABASE_URL is not set")

const (
	connMaxLifetime = time.Hour
	connMaxIdleTime = 10 * time.Minute
	pingTimeout     = 10 * time.Second
)

// Pool is the connection pool of the gallery database.
type Pool struct {
	db *sql.DB
}

// Connect opens a pool and checks that the server answers.
func Connect(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, ErrNoDatabase
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Pool{db: db}, nil
}

// Open connects to the gallery database and applies pending migrations.
func Open(ctx context.Context, cfg *config.DatabaseConfig, log *zap.Logger) (*Pool, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	applied, err := pool.Migrate(ctx, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate gallery schema: %w", err)
	}
	log.Debug("gallery database ready", zap.Int("migrations_applied", applied))
	return pool, nil
}

// Close releases every connection. It is safe to call on a nil pool.
func (p *Pool) Close() {
	if p != nil && p.db != nil {
		_ = p.db.Close()
	}
}

func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return p.db.QueryRowContext(ctx, query, args...)
}

func (p *Pool) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return p.db.QueryContext(ctx, query, args...)
}

func (p *Pool) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return p.db.ExecContext(ctx, query, args...)
}

func (p *Pool) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return p.db.BeginTx(ctx, opts)
}
