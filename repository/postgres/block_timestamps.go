package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/nomad-xyz/nomad-monitor/db"
	"github.com/nomad-xyz/nomad-monitor/entity"
)

type blockTimestampsRepo basePostgresRepo

func NewBlockTimestampsRepo(table string, db *db.DB) entity.BlockTimestampsRepo {
	return (*blockTimestampsRepo)(newBasePostgresRepo(table, db))
}

func (r *blockTimestampsRepo) Ensure(ctx context.Context, timestamps ...*entity.BlockTimestamp) error {
	return execInBatches(ctx, r.db, len(timestamps), func(ctx context.Context, from, to int) error {
		return r.insert(ctx, timestamps[from:to])
	})
}

func (r *blockTimestampsRepo) insert(ctx context.Context, timestamps []*entity.BlockTimestamp) error {
	if len(timestamps) == 0 {
		return nil
	}
	q := psql.Insert(r.table).
		Columns("domain", "block_number", "timestamp")
	for _, ts := range timestamps {
		q = q.Values(ts.Domain, ts.BlockNumber, ts.Timestamp)
	}
	query, args, err := q.Suffix("ON CONFLICT (domain, block_number) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("can't insert block timestamps: %w", err)
	}
	return nil
}

func (r *blockTimestampsRepo) FindByBlockNumbers(ctx context.Context, domain uint32, blockNumbers []uint) ([]*entity.BlockTimestamp, error) {
	if len(blockNumbers) == 0 {
		return nil, nil
	}
	q, args, err := psql.Select("*").
		From(r.table).
		Where(sq.Eq{
			"domain":       domain,
			"block_number": blockNumbers,
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	res := make([]*entity.BlockTimestamp, 0, len(blockNumbers))
	err = r.db.SelectContext(ctx, &res, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't find block timestamps: %w", err)
	}
	return res, nil
}
