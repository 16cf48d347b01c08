// Package infratest opens the Postgres database used by integration tests.
package infratest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/smartdustbin/ecorewards/internal/infra"
	"github.com/smartdustbin/ecorewards/internal/logging"
)

// Pool migrates the database named by DATABASE_URL and returns a pool closed
// at the end of the test. The test is skipped when no database is configured.
func Pool(t testing.TB) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env")
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	if err := infra.Migrate(url, logging.Discard()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := infra.NewPostgresPool(context.Background(), url)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// SeedUser inserts a zero balance account for userID.
func SeedUser(t testing.TB, pool *pgxpool.Pool, userID string) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (id, rank, level) VALUES ($1, 'Novice Recycler', 1) ON CONFLICT (id) DO NOTHING`, userID)
	if err != nil {
		t.Fatalf("seed user %s: %v", userID, err)
	}
}

// SeedBin inserts an empty active bin.
func SeedBin(t testing.TB, pool *pgxpool.Pool, binID string) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO bins (id, location, status) VALUES ($1, 'integration', 'active') ON CONFLICT (id) DO NOTHING`, binID)
	if err != nil {
		t.Fatalf("seed bin %s: %v", binID, err)
	}
}
