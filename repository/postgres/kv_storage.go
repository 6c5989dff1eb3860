package postgres

import (
	"context"
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"

	"github.com/nomad-xyz/nomad-monitor/db"
	"github.com/nomad-xyz/nomad-monitor/entity"
)

type kvStorageRepo basePostgresRepo

func NewKVStorageRepo(table string, db *db.DB) entity.KVStorageRepo {
	return (*kvStorageRepo)(newBasePostgresRepo(table, db))
}

func (r *kvStorageRepo) Get(ctx context.Context, namespace, key string) (string, error) {
	q, args, err := psql.Select("value").
		From(r.table).
		Where(sq.Eq{"namespace": namespace, "key": key}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("can't build query: %w", err)
	}
	var value string
	err = r.db.GetContext(ctx, &value, q, args...)
	if err != nil {
		return "", fmt.Errorf("can't get kv value: %w", err)
	}
	return value, nil
}

func (r *kvStorageRepo) Set(ctx context.Context, namespace, key, value string) error {
	q, args, err := psql.Insert(r.table).
		Columns("namespace", "key", "value").
		Values(namespace, key, value).
		Suffix("ON CONFLICT (namespace, key) DO UPDATE SET updated_at = NOW(), value = EXCLUDED.value").
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't set kv value: %w", err)
	}
	return nil
}

func (r *kvStorageRepo) GetCursor(ctx context.Context, namespace string) (uint, error) {
	value, err := r.Get(ctx, namespace, entity.CursorKey)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("can't parse cursor value %q: %w", value, err)
	}
	return uint(n), nil
}

func (r *kvStorageRepo) SetCursor(ctx context.Context, namespace string, blockNumber uint) error {
	return r.Set(ctx, namespace, entity.CursorKey, strconv.FormatUint(uint64(blockNumber), 10))
}
