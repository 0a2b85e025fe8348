package migrations

import (
	"context"
	"testing"

	"github.com/uptrace/bun"

	"github.com/sequoiaprint/keka-integrations/pkg/config"
	"github.com/sequoiaprint/keka-integrations/pkg/pgutil"
)

// Test DAO for testing purposes
type testDao struct {
	bun.BaseModel `bun:"table:test_table"`
	ID            int64  `bun:",pk,autoincrement"`
	Name          string `bun:",notnull,type:varchar(100)"`
	Day           string `bun:",nullzero,type:varchar(32)"`
}

func TestConnectDB_Success(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()

	if err := db.Ping(); err != nil {
		t.Errorf("Ping() failed: %v", err)
	}
}

func TestConnectDB_InvalidHost(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:     "invalid-host-that-does-not-exist",
		Port:     5432,
		User:     "test",
		Password: "test",
		Database: "test",
		SSLMode:  "disable",
	}

	db, err := pgutil.ConnectDB(cfg)
	if err == nil {
		db.Close()
		t.Error("ConnectDB() should fail with invalid host")
	}
}

func TestCreateSchema(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	err := CreateSchema(ctx, db, &testDao{})
	if err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}

	pgutil.AssertTableExists(t, db, "test_table")

	// Verify idempotency - calling again should not fail
	err = CreateSchema(ctx, db, &testDao{})
	if err != nil {
		t.Errorf("CreateSchema() second call failed: %v", err)
	}
}

func TestDropTables(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	err := CreateSchema(ctx, db, &testDao{})
	if err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	pgutil.AssertTableExists(t, db, "test_table")

	err = DropTables(ctx, db, &testDao{})
	if err != nil {
		t.Fatalf("DropTables() failed: %v", err)
	}

	pgutil.AssertTableNotExists(t, db, "test_table")

	// Verify idempotency - calling again should not fail
	err = DropTables(ctx, db, &testDao{})
	if err != nil {
		t.Errorf("DropTables() second call failed: %v", err)
	}
}

func TestCreateIndexes(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	err := CreateSchema(ctx, db, &testDao{})
	if err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}

	err = CreateIndexes(ctx, db, "test_table", "name", "day")
	if err != nil {
		t.Fatalf("CreateIndexes() failed: %v", err)
	}

	pgutil.AssertIndexExists(t, db, "idx_test_table_name")
	pgutil.AssertIndexExists(t, db, "idx_test_table_day")
}

func TestCreateUniqueCompositeIndex(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	err := CreateSchema(ctx, db, &testDao{})
	if err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}

	err = CreateUniqueCompositeIndex(ctx, db, "test_table", "uq_test_table_name_day", "name", "day")
	if err != nil {
		t.Fatalf("CreateUniqueCompositeIndex() failed: %v", err)
	}

	pgutil.AssertIndexExists(t, db, "uq_test_table_name_day")

	// Verify uniqueness over the pair of columns
	_, err = db.NewInsert().Model(&testDao{Name: "EMP1", Day: "2025-01-01"}).Exec(ctx)
	if err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	_, err = db.NewInsert().Model(&testDao{Name: "EMP1", Day: "2025-01-02"}).Exec(ctx)
	if err != nil {
		t.Fatalf("insert with different day failed: %v", err)
	}

	_, err = db.NewInsert().Model(&testDao{Name: "EMP1", Day: "2025-01-01"}).Exec(ctx)
	if err == nil {
		t.Error("expected duplicate (name, day) insert to fail, but it succeeded")
	}
}

func TestDropIndex(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	err := CreateSchema(ctx, db, &testDao{})
	if err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}

	err = CreateIndexes(ctx, db, "test_table", "name")
	if err != nil {
		t.Fatalf("CreateIndexes() failed: %v", err)
	}
	pgutil.AssertIndexExists(t, db, "idx_test_table_name")

	err = DropIndex(ctx, db, "idx_test_table_name")
	if err != nil {
		t.Fatalf("DropIndex() failed: %v", err)
	}

	var exists bool
	query := `SELECT EXISTS (SELECT FROM pg_indexes WHERE schemaname = 'public' AND indexname = ?)`
	err = db.NewRaw(query, "idx_test_table_name").Scan(ctx, &exists)
	if err != nil {
		t.Fatalf("failed to check index: %v", err)
	}
	if exists {
		t.Error("index should be dropped but still exists")
	}

	// Verify idempotency
	err = DropIndex(ctx, db, "idx_test_table_name")
	if err != nil {
		t.Errorf("DropIndex() second call failed: %v", err)
	}
}
