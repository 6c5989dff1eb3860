package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/nomad-xyz/nomad-monitor/db"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type basePostgresRepo struct {
	table string
	db    *db.DB
}

func newBasePostgresRepo(table string, db *db.DB) *basePostgresRepo {
	return &basePostgresRepo{
		table: table,
		db:    db,
	}
}

// insertBatchSize bounds rows per multi-row INSERT, postgres accepts at most
// 65535 bind parameters in one statement.
const insertBatchSize = 1000

// execInBatches calls exec for consecutive [from, to) chunks of n rows, several
// chunks share one transaction.
func execInBatches(ctx context.Context, conn *db.DB, n int, exec func(ctx context.Context, from, to int) error) error {
	if n <= insertBatchSize {
		return exec(ctx, 0, n)
	}
	return conn.RunInTransaction(ctx, func(ctx context.Context) error {
		for from := 0; from < n; from += insertBatchSize {
			if err := exec(ctx, from, min(from+insertBatchSize, n)); err != nil {
				return err
			}
		}
		return nil
	})
}
