package repository

import (
	"context"

	"github.com/nomad-xyz/nomad-monitor/db"
	"github.com/nomad-xyz/nomad-monitor/entity"
	"github.com/nomad-xyz/nomad-monitor/repository/postgres"
)

// Transactor runs fn atomically, repos called with the ctx passed to fn join the transaction.
type Transactor interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Repo struct {
	Messages        entity.MessagesRepo
	KVStorage       entity.KVStorageRepo
	StageEvents     entity.StageEventsRepo
	BlockTimestamps entity.BlockTimestampsRepo

	tx Transactor
}

func NewRepo(db *db.DB) *Repo {
	return &Repo{
		Messages:        postgres.NewMessagesRepo("messages", db),
		KVStorage:       postgres.NewKVStorageRepo("kv_storage", db),
		StageEvents:     postgres.NewStageEventsRepo("stage_events", db),
		BlockTimestamps: postgres.NewBlockTimestampsRepo("block_timestamps", db),
		tx:              db,
	}
}

func (r *Repo) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.tx == nil {
		return fn(ctx)
	}
	return r.tx.RunInTransaction(ctx, fn)
}
