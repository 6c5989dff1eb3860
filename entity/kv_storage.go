package entity

import (
	"context"
)

const CursorKey = "last_indexed_block"

type KVStorageRepo interface {
	Get(ctx context.Context, namespace, key string) (string, error)
	Set(ctx context.Context, namespace, key, value string) error
	GetCursor(ctx context.Context, namespace string) (uint, error)
	SetCursor(ctx context.Context, namespace string, blockNumber uint) error
}
