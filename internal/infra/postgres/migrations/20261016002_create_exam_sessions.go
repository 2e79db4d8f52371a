package migrations

import (
	"context"

	"exam-session-engine/internal/infra/sqlstore"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			return sqlstore.CreateSchema(ctx, db)
		},
		func(ctx context.Context, db *bun.DB) error {
			return sqlstore.DropSchema(ctx, db)
		},
	)
}
