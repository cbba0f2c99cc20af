package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	// Import pgx driver for database/sql compatibility in tests.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/target/prepflow/config"
	"github.com/target/prepflow/internal/migrate"
)

// defaultTestDBPort is the port of the local test database from docker-compose.
const defaultTestDBPort = "55432"

// prepflowTables are emptied between tests sharing one database. Step results cascade with jobs.
var prepflowTables = []string{"jobs", "tenant_records"}

// Infra locates the Postgres and Redis instances integration tests run against.
type Infra struct {
	DB        config.DBConfig `envPrefix:"TEST_DB_"`
	Ephemeral bool            `env:"TEST_DB_EPHEMERAL"`
	RedisAddr string          `env:"TEST_REDIS_ADDR"   envDefault:"localhost:56379"`
	RedisDB   int             `env:"TEST_REDIS_DB"     envDefault:"1"`

	RequireDB    bool `env:"TEST_REQUIRE_DB"`
	RequireRedis bool `env:"TEST_REQUIRE_REDIS"`
	RequireInfra bool `env:"TEST_REQUIRE_INFRA"`
}

// LoadInfra reads TEST_* variables from environ. The database port defaults to the local test port.
func LoadInfra(environ map[string]string) (Infra, error) {
	if _, ok := environ["TEST_DB_PORT"]; !ok {
		environ["TEST_DB_PORT"] = defaultTestDBPort
	}
	var in Infra
	err := env.ParseWithOptions(&in, env.Options{Environment: environ})
	return in, err
}

func loadInfra(t testing.TB) Infra {
	t.Helper()
	in, err := LoadInfra(env.ToMap(os.Environ()))
	if err != nil {
		t.Fatalf("parse test infrastructure env: %v", err)
	}
	return in
}

// unavailable skips the test, or fails it when the infrastructure is required.
func unavailable(t testing.TB, required bool, what string, err error) {
	t.Helper()
	if required {
		t.Fatalf("%s not available: %v", what, err)
	}
	t.Skipf("%s not available: %v", what, err)
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// SkipIfNoTestDB skips the test when the test database cannot be reached.
func SkipIfNoTestDB(t testing.TB) {
	t.Helper()
	in := loadInfra(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	db, err := openDB(ctx, in.DB.DSN())
	if err != nil {
		unavailable(t, in.RequireDB || in.RequireInfra, "test database", err)
		return
	}
	_ = db.Close()
}

// WithAutoDB runs fn against a migrated database: a throwaway schema when TEST_DB_EPHEMERAL is set,
// otherwise the shared test database emptied before and after fn.
func WithAutoDB(t testing.TB, fn func(*sql.DB)) {
	t.Helper()
	in := loadInfra(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dsn := in.DB.DSN()
	var schema string
	if in.Ephemeral {
		schema = createSchema(ctx, t, in)
		u, err := url.Parse(dsn)
		if err != nil {
			t.Fatalf("parse test DSN: %v", err)
		}
		q := u.Query()
		q.Set("search_path", schema)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := openDB(ctx, dsn)
	if err != nil {
		unavailable(t, in.RequireDB || in.RequireInfra, "test database", err)
		return
	}
	t.Cleanup(func() {
		if schema == "" {
			truncate(t, db)
		}
		if err := db.Close(); err != nil {
			t.Logf("close test database: %v", err)
		}
	})
	if err := migrate.Run(ctx, db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	if schema == "" {
		truncate(t, db)
	}
	fn(db)
}

func createSchema(ctx context.Context, t testing.TB, in Infra) string {
	t.Helper()
	admin, err := openDB(ctx, in.DB.DSN())
	if err != nil {
		unavailable(t, in.RequireDB || in.RequireInfra, "test database", err)
		return ""
	}
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	schema := "prepflow_t_" + hex.EncodeToString(b)
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		_ = admin.Close()
		t.Fatalf("create schema %s: %v", schema, err)
	}
	t.Logf("using ephemeral schema %s", schema)
	t.Cleanup(func() {
		dropCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := admin.ExecContext(dropCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		_ = admin.Close()
	})
	return schema
}

func truncate(t testing.TB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, table := range prepflowTables {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("clean table %s: %v", table, err)
		}
	}
}

// SetupTestRedis returns a client on the test Redis database, flushed before use and closed
// when the test ends.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()
	in := loadInfra(t)
	client := redis.NewClient(&redis.Options{Addr: in.RedisAddr, DB: in.RedisDB})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		unavailable(t, in.RequireRedis || in.RequireInfra, "test redis at "+in.RedisAddr, err)
		return nil
	}
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("close test redis: %v", err)
		}
	})
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush test redis: %v", err)
	}
	return client
}

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}
