package migrations

import (
	"context"
	"testing"

	"github.com/sequoiaprint/keka-integrations/pkg/hrstore"
	"github.com/sequoiaprint/keka-integrations/pkg/migrations/hrdb"
	mghelper "github.com/sequoiaprint/keka-integrations/pkg/pgutil"
	"github.com/uptrace/bun/migrate"
)

func TestHRDBMigrations_Apply(t *testing.T) {
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, hrdb.Migrations)

	// Initialize migration system
	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	// Run all migrations up
	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected migrations to run, but none were applied")
	}

	// Verify all expected tables exist
	expectedTables := []string{
		"employees",
		"attendance",
		"bun_migrations",
	}
	for _, table := range expectedTables {
		mghelper.AssertTableExists(t, db, table)
	}

	// Verify indexes
	mghelper.AssertIndexExists(t, db, "idx_employees_name")
	mghelper.AssertIndexExists(t, db, "idx_attendance_attendance_date")
	mghelper.AssertIndexExists(t, db, "uq_attendance_employee_date")
}

func TestHRDBMigrations_Idempotency(t *testing.T) {
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, hrdb.Migrations)

	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	// Run migrations first time
	_, err = migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("First Migrate() failed: %v", err)
	}

	// Run migrations second time - should not fail
	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Second Migrate() failed: %v", err)
	}

	// Should return zero group (no new migrations)
	if !group.IsZero() {
		t.Error("Expected no new migrations on second run")
	}

	mghelper.AssertTableExists(t, db, "employees")
	mghelper.AssertTableExists(t, db, "attendance")
}

func TestHRDBMigrations_Rollback(t *testing.T) {
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, hrdb.Migrations)

	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	_, err = migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}

	mghelper.AssertTableExists(t, db, "employees")
	mghelper.AssertTableExists(t, db, "attendance")

	// Rollback last migration group (all migrations run in one group by Migrate())
	group, err := migrator.Rollback(ctx)
	if err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected rollback to process a migration")
	}

	mghelper.AssertTableNotExists(t, db, "attendance")
	mghelper.AssertTableNotExists(t, db, "employees")
}

func TestAttendanceUniqueIndex_Applied(t *testing.T) {
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, hrdb.Migrations)

	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	_, err = migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}

	row := &hrstore.AttendanceDao{
		ID:             "rec-1",
		EmployeeID:     "emp-1",
		AttendanceDate: "2025-08-28",
		ShiftStart:     "2025-08-28 09:00:00",
		ShiftEnd:       "2025-08-28 18:00:00",
	}
	_, err = db.NewInsert().Model(row).Exec(ctx)
	if err != nil {
		t.Fatalf("Failed to insert attendance row: %v", err)
	}

	// A second row for the same employee and day must violate the
	// composite unique index
	dup := &hrstore.AttendanceDao{
		ID:             "rec-2",
		EmployeeID:     "emp-1",
		AttendanceDate: "2025-08-28",
		ShiftStart:     "2025-08-28 09:30:00",
		ShiftEnd:       "2025-08-28 18:30:00",
	}
	_, err = db.NewInsert().Model(dup).Exec(ctx)
	if err == nil {
		t.Error("Expected duplicate (employee_id, attendance_date) insert to fail, but it succeeded")
	}

	mghelper.AssertRowCount(t, db, "attendance", 1)
}
