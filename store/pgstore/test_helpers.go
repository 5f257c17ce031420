package pgstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v4"

	"github.com/cloudx-io/confidentialbid/store"
)

// TestConnStrEnv names the environment variable holding the admin connection
// string for Postgres-backed tests.
const TestConnStrEnv = "PGCONNSTRING"

// NewTestStore returns a store over a fresh database named after the test.
// The database is dropped when the test passes and kept for inspection when
// it fails. The test is skipped unless TestConnStrEnv is set.
func NewTestStore(t *testing.T) store.Store {
	t.Helper()

	connStr := os.Getenv(TestConnStrEnv)
	if connStr == "" {
		t.Skipf("set %s to run this test", TestConnStrEnv)
	}

	ctx := context.Background()

	cfg, err := pgx.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("parse %s: %v", TestConnStrEnv, err)
	}
	cfg.Database = "postgres"

	admin, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect admin: %v", err)
	}

	dbName := testDatabaseName(t)
	if _, err := admin.Exec(ctx, fmt.Sprintf(`CREATE DATABASE %q`, dbName)); err != nil {
		t.Fatalf("create %s: %v", dbName, err)
	}

	t.Cleanup(func() {
		defer admin.Close(ctx)

		if t.Failed() {
			t.Logf("keeping database %s", dbName)
			return
		}
		if _, err := admin.Exec(ctx, fmt.Sprintf(`DROP DATABASE %q WITH (FORCE)`, dbName)); err != nil {
			t.Errorf("drop %s: %v", dbName, err)
		}
	})

	u, err := url.Parse(cfg.ConnString())
	if err != nil {
		t.Fatalf("parse test connection string: %v", err)
	}
	u.Path = dbName

	s, err := NewStore(ctx, u.String(), log.NewNopLogger())
	if err != nil {
		t.Fatalf("open %s: %v", dbName, err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close %s: %v", dbName, err)
		}
	})

	return s
}

// testDatabaseName is unique per call and recognizable per test.
func testDatabaseName(t *testing.T) string {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(strings.ToLower(t.Name()))
	if len(name) > 30 {
		name = name[:30]
	}
	return fmt.Sprintf("cbid_%s_%s", name, uuid.NewString()[:8])
}
