package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/kozaktomas/face-registry/internal/config"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// DSNFromURL turns a mysql:// URL into a driver DSN with parseTime enabled.
// Plain DSNs are accepted unchanged apart from parseTime.
func DSNFromURL(url string) (string, error) {
	dsn := strings.TrimPrefix(url, "mysql://")
	dsn = strings.TrimPrefix(dsn, "mariadb://")

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parsing MariaDB DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// NewPool creates a new MariaDB connection pool.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("MariaDB DSN is required")
	}
	dsn, err := DSNFromURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Ping checks that the database answers.
func (p *Pool) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging MariaDB: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS identities (
		id            VARCHAR(64) NOT NULL PRIMARY KEY,
		name          VARCHAR(255) NOT NULL,
		name_key      VARCHAR(255) NOT NULL,
		embedding     MEDIUMBLOB NOT NULL,
		dim           INT NOT NULL,
		accepted      BOOLEAN NOT NULL DEFAULT TRUE,
		registered_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_identities_name_key (name_key),
		KEY idx_identities_registered_at (registered_at, id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS recognition_logs (
		id          BIGINT AUTO_INCREMENT PRIMARY KEY,
		identity_id VARCHAR(64) NULL,
		name        VARCHAR(255) NOT NULL,
		score       DOUBLE NOT NULL,
		bbox        VARCHAR(255) NOT NULL,
		created_at  DATETIME(6) NOT NULL,
		KEY idx_recognition_logs_created_at (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the tables if they do not exist.
func (p *Pool) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply MariaDB schema: %w", err)
		}
	}
	return nil
}

// Backend is the MariaDB identity store.
type Backend struct {
	*Pool
	*IdentityRepository
}

// Open connects, applies the schema and returns a ready backend.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Backend, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Backend{Pool: pool, IdentityRepository: &IdentityRepository{db: pool.db}}, nil
}
