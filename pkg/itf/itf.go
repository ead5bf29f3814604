// Package itf sets up throwaway PostgreSQL databases for integration tests.
package itf

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	migrations "github.com/iota-uz/lendops/migrations/assignments"
	"github.com/iota-uz/lendops/pkg/composables"
	"github.com/iota-uz/lendops/pkg/configuration"
)

// PostgreSQL truncates identifiers longer than this.
const maxDBNameLength = 63

// SkipWithoutDB skips tb unless DB_HOST points at a reachable server.
func SkipWithoutDB(tb testing.TB) {
	tb.Helper()
	if strings.TrimSpace(os.Getenv("DB_HOST")) == "" {
		tb.Skip("DB_HOST is not set; skipping postgres integration test")
	}
}

func sanitizeDBName(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	sanitized := strings.Trim(b.String(), "_")
	if sanitized == "" {
		sanitized = "test_db"
	}
	if len(sanitized) <= maxDBNameLength {
		return sanitized
	}
	sum := fmt.Sprintf("%x", sha256.Sum256([]byte(name)))[:8]
	return strings.TrimRight(sanitized[:maxDBNameLength-len(sum)-1], "_") + "_" + sum
}

func adminOpts() string {
	db := configuration.Use().Database
	return fmt.Sprintf("host=%s port=%s user=%s dbname=postgres password=%s sslmode=disable",
		db.Host, db.Port, db.User, db.Password)
}

// DbOpts is the connection string of the test database called name.
func DbOpts(name string) string {
	db := configuration.Use().Database
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		db.Host, db.Port, db.User, sanitizeDBName(name), db.Password)
}

// CreateDB drops and recreates the database called name and registers its
// removal on cleanup.
func CreateDB(tb testing.TB, name string) {
	tb.Helper()
	ctx := context.Background()
	dbName := sanitizeDBName(name)

	admin, err := sql.Open("postgres", adminOpts())
	if err != nil {
		tb.Fatalf("open admin connection: %v", err)
	}
	if err := admin.PingContext(ctx); err != nil {
		_ = admin.Close()
		tb.Skipf("postgres is not reachable: %v", err)
	}
	if _, err := admin.ExecContext(ctx, "DROP DATABASE IF EXISTS "+dbName); err != nil {
		_ = admin.Close()
		tb.Fatalf("drop database: %v", err)
	}
	if _, err := admin.ExecContext(ctx, "CREATE DATABASE "+dbName); err != nil {
		_ = admin.Close()
		tb.Fatalf("create database: %v", err)
	}
	tb.Cleanup(func() {
		_, _ = admin.ExecContext(context.Background(), "DROP DATABASE IF EXISTS "+dbName+" WITH (FORCE)")
		_ = admin.Close()
	})
}

func NewPool(tb testing.TB, dbOpts string) *pgxpool.Pool {
	tb.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	config, err := pgxpool.ParseConfig(dbOpts)
	if err != nil {
		tb.Fatalf("parse pool config: %v", err)
	}
	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		tb.Fatalf("create pool: %v", err)
	}
	return pool
}

// NewAssignmentsDB creates a database named after tb, applies the assignment
// migrations and returns a context carrying its pool.
func NewAssignmentsDB(tb testing.TB) (context.Context, *pgxpool.Pool) {
	tb.Helper()
	SkipWithoutDB(tb)
	CreateDB(tb, "itf_"+tb.Name())

	ctx := context.Background()
	sqlDB, err := sql.Open("postgres", DbOpts("itf_"+tb.Name()))
	if err != nil {
		tb.Fatalf("open test database: %v", err)
	}
	if _, err := migrations.Up(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		tb.Fatalf("migrate test database: %v", err)
	}
	_ = sqlDB.Close()

	pool := NewPool(tb, DbOpts("itf_"+tb.Name()))
	tb.Cleanup(pool.Close)
	return composables.WithPool(ctx, pool), pool
}
