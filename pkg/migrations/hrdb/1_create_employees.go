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
		log.Println("creating employees table...")
		if err := mghelper.CreateSchema(ctx, db, &hrstore.EmployeeDao{}); err != nil {
			return err
		}
		return mghelper.CreateIndexes(ctx, db, "employees", "name", "floor", "division", "machine")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping employees table...")
		return mghelper.DropTables(ctx, db, &hrstore.EmployeeDao{})
	})
}
