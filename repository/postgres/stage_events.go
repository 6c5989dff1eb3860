package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"

	"github.com/nomad-xyz/nomad-monitor/db"
	"github.com/nomad-xyz/nomad-monitor/entity"
)

type stageEventsRepo basePostgresRepo

func NewStageEventsRepo(table string, db *db.DB) entity.StageEventsRepo {
	return (*stageEventsRepo)(newBasePostgresRepo(table, db))
}

func (r *stageEventsRepo) Ensure(ctx context.Context, events ...*entity.StageEvent) error {
	return execInBatches(ctx, r.db, len(events), func(ctx context.Context, from, to int) error {
		return r.insert(ctx, events[from:to])
	})
}

func (r *stageEventsRepo) insert(ctx context.Context, events []*entity.StageEvent) error {
	if len(events) == 0 {
		return nil
	}
	q := psql.Insert(r.table).
		Columns("domain", "kind", "origin", "old_root", "new_root", "message_hash", "nonce", "success",
			"block_number", "log_index", "tx_hash", "timestamp")
	for _, e := range events {
		q = q.Values(e.Domain, e.Kind, e.Origin, e.OldRoot, e.NewRoot, e.MessageHash, e.Nonce, e.Success,
			e.BlockNumber, e.LogIndex, e.TxHash, e.Timestamp)
	}
	query, args, err := q.Suffix("ON CONFLICT (domain, tx_hash, log_index) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("can't insert stage events: %w", err)
	}
	return nil
}

// FindForMessages returns journal entries that may correlate with msgs, callers
// still have to check each entry against the message.
func (r *stageEventsRepo) FindForMessages(ctx context.Context, msgs []*entity.Message) ([]*entity.StageEvent, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	hashes := make([]common.Hash, 0, len(msgs))
	roots := make(map[uint32][]common.Hash)
	nonces := make(map[uint32]pq.Int64Array)
	for _, msg := range msgs {
		hashes = append(hashes, msg.Hash)
		roots[msg.Origin] = append(roots[msg.Origin], msg.Root)
		nonces[msg.Origin] = append(nonces[msg.Origin], int64(msg.Nonce))
	}
	cond := sq.Or{sq.Eq{"kind": entity.EventKindProcess, "message_hash": hashes}}
	for origin, originRoots := range roots {
		cond = append(cond, sq.Eq{
			"kind":     []entity.EventKind{entity.EventKindUpdate, entity.EventKindRelay},
			"origin":   origin,
			"old_root": originRoots,
		})
	}
	for origin, originNonces := range nonces {
		cond = append(cond, sq.And{
			sq.Eq{"kind": entity.EventKindReceive, "origin": origin},
			sq.Expr("nonce = ANY(?)", originNonces),
		})
	}
	q, args, err := psql.Select("*").
		From(r.table).
		Where(cond).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	events := make([]*entity.StageEvent, 0, 10)
	err = r.db.SelectContext(ctx, &events, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't find stage events: %w", err)
	}
	return events, nil
}
