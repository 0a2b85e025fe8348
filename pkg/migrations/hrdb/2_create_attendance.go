package hrdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/sequoiaprint/keka-integrations/pkg/hrstore"
	mghelper "github.com/sequoiaprint/keka-integrations/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating attendance table...")
		if err := mghelper.CreateSchema(ctx, db, &hrstore.AttendanceDao{}); err != nil {
			return err
		}
		// One row per employee per calendar date
		if err := mghelper.CreateUniqueCompositeIndex(ctx, db, "attendance",
			"uq_attendance_employee_date", "employee_id", "attendance_date"); err != nil {
			return err
		}
		return mghelper.CreateIndexes(ctx, db, "attendance", "attendance_date")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping attendance table...")
		return mghelper.DropTables(ctx, db, &hrstore.AttendanceDao{})
	})
}
