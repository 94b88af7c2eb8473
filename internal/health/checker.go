// Package health provides readiness checks for the feed server's backing stores.
package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Checker is a named dependency check used by the readiness endpoint.
type Checker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

// DBChecker checks that Postgres is reachable and the schema is migrated.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a database checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// Name implements Checker.
func (d *DBChecker) Name() string { return "database" }

// HealthCheck pings the database and queries the profiles table. An empty
// table is healthy; a missing one is not.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	var one int
	err := d.db.QueryRowContext(ctx, "SELECT 1 FROM profiles LIMIT 1").Scan(&one)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("schema check: %w", err)
	}
	return nil
}

// RedisChecker checks Redis with PING.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a Redis checker.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// Name implements Checker.
func (r *RedisChecker) Name() string { return "redis" }

// HealthCheck sends PING.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
