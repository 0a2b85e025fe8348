package pgutil

import (
	"context"
	"testing"
	"time"

	"github.com/sequoiaprint/keka-integrations/pkg/config"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
)

const (
	testPostgresImage = "postgres:15-alpine"
	testDatabase      = "keka_hr_test"
	testUser          = "keka"
	testPassword      = "keka"

	connectAttempts = 10
)

// SetupTestDB starts a throwaway PostgreSQL container and returns a bun
// connection to it plus a cleanup func that tears both down.
func SetupTestDB(t *testing.T) (*bun.DB, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		testPostgresImage,
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(testUser),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			// The entrypoint restarts postgres once during init, so
			// wait for the second ready line.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	terminate := func() { _ = testcontainers.TerminateContainer(container) }

	host, err := container.Host(ctx)
	if err != nil {
		terminate()
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		terminate()
		t.Fatalf("failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		User:     testUser,
		Password: testPassword,
		Database: testDatabase,
		SSLMode:  "disable",
	}

	// The mapped port can be up before postgres accepts connections,
	// so retry with doubling backoff.
	var db *bun.DB
	backoff := 100 * time.Millisecond
	for attempt := 1; ; attempt++ {
		db, err = ConnectDB(cfg)
		if err == nil {
			break
		}
		if attempt == connectAttempts {
			terminate()
			t.Fatalf("failed to connect to test database after %d attempts: %v", connectAttempts, err)
		}
		time.Sleep(backoff)
		backoff *= 2
	}

	cleanup := func() {
		_ = db.Close()
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return db, cleanup
}

// AssertTableExists fails the test when tableName is absent from the
// public schema.
func AssertTableExists(t *testing.T, db *bun.DB, tableName string) {
	t.Helper()
	if !tableExists(t, db, tableName) {
		t.Errorf("table %s does not exist", tableName)
	}
}

// AssertTableNotExists fails the test when tableName is still present.
func AssertTableNotExists(t *testing.T, db *bun.DB, tableName string) {
	t.Helper()
	if tableExists(t, db, tableName) {
		t.Errorf("table %s should not exist but it does", tableName)
	}
}

func tableExists(t *testing.T, db *bun.DB, tableName string) bool {
	t.Helper()

	var exists bool
	err := db.NewSelect().
		ColumnExpr("EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = ? AND table_name = ?)", "public", tableName).
		Scan(context.Background(), &exists)
	if err != nil {
		t.Fatalf("failed to check if table %s exists: %v", tableName, err)
	}
	return exists
}

// AssertIndexExists fails the test when indexName is absent from the
// public schema.
func AssertIndexExists(t *testing.T, db *bun.DB, indexName string) {
	t.Helper()

	var exists bool
	err := db.NewSelect().
		ColumnExpr("EXISTS (SELECT 1 FROM pg_indexes WHERE schemaname = ? AND indexname = ?)", "public", indexName).
		Scan(context.Background(), &exists)
	if err != nil {
		t.Fatalf("failed to check if index %s exists: %v", indexName, err)
	}
	if !exists {
		t.Errorf("index %s does not exist", indexName)
	}
}

// AssertRowCount fails the test unless tableName holds exactly expected rows.
func AssertRowCount(t *testing.T, db *bun.DB, tableName string, expected int) {
	t.Helper()

	var count int
	err := db.NewSelect().
		TableExpr("?", bun.Ident(tableName)).
		ColumnExpr("COUNT(*)").
		Scan(context.Background(), &count)
	if err != nil {
		t.Fatalf("failed to count rows in table %s: %v", tableName, err)
	}
	if count != expected {
		t.Errorf("table %s: expected %d rows, got %d", tableName, expected, count)
	}
}
