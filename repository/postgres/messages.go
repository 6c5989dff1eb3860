package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"

	"github.com/nomad-xyz/nomad-monitor/db"
	"github.com/nomad-xyz/nomad-monitor/entity"
	"github.com/nomad-xyz/nomad-monitor/lifecycle"
)

var messageColumns = []string{
	"hash", "origin", "destination", "nonce", "sender", "recipient", "root", "leaf_index", "raw_body",
	"state", "dispatch_block", "origin_tx_hash",
	"dispatched_at", "updated_at", "relayed_at", "received_at", "processed_at", "process_success",
	"bridge_msg_type", "bridge_recipient", "bridge_amount", "bridge_allow_fast",
	"bridge_details_hash", "bridge_token_domain", "bridge_token_id",
}

// columns which keep the first non-null value ever written
var messageCoalesceColumns = []string{
	"sender", "recipient",
	"dispatched_at", "updated_at", "relayed_at", "received_at", "processed_at", "process_success",
	"bridge_msg_type", "bridge_recipient", "bridge_amount", "bridge_allow_fast",
	"bridge_details_hash", "bridge_token_domain", "bridge_token_id",
}

const incompleteCondition = "(state < 3 OR (received_at IS NULL AND bridge_msg_type IN ('transfer', 'fastTransfer')))"

type messagesRepo basePostgresRepo

func NewMessagesRepo(table string, db *db.DB) entity.MessagesRepo {
	return (*messagesRepo)(newBasePostgresRepo(table, db))
}

func (r *messagesRepo) upsertSuffix() string {
	suffix := fmt.Sprintf("ON CONFLICT (hash) DO UPDATE SET state = GREATEST(%s.state, EXCLUDED.state)", r.table)
	for _, col := range messageCoalesceColumns {
		suffix += fmt.Sprintf(", %[2]s = COALESCE(%[1]s.%[2]s, EXCLUDED.%[2]s)", r.table, col)
	}
	return suffix
}

// dedupMessages merges messages sharing a hash, ON CONFLICT can't touch a row twice in one statement.
func dedupMessages(msgs []*entity.Message) []*entity.Message {
	res := make([]*entity.Message, 0, len(msgs))
	index := make(map[common.Hash]int, len(msgs))
	for _, msg := range msgs {
		if i, ok := index[msg.Hash]; ok {
			res[i] = lifecycle.Merge(res[i], msg)
			continue
		}
		index[msg.Hash] = len(res)
		res = append(res, msg)
	}
	return res
}

func (r *messagesRepo) Upsert(ctx context.Context, msgs ...*entity.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	msgs = dedupMessages(msgs)
	return execInBatches(ctx, r.db, len(msgs), func(ctx context.Context, from, to int) error {
		return r.upsert(ctx, msgs[from:to])
	})
}

func (r *messagesRepo) upsert(ctx context.Context, msgs []*entity.Message) error {
	q := psql.Insert(r.table).Columns(messageColumns...)
	for _, msg := range msgs {
		q = q.Values(
			msg.Hash, msg.Origin, msg.Destination, msg.Nonce, msg.Sender, msg.Recipient, msg.Root, msg.LeafIndex, msg.RawBody,
			msg.State, msg.DispatchBlock, msg.OriginTxHash,
			msg.DispatchedAt, msg.UpdatedAt, msg.RelayedAt, msg.ReceivedAt, msg.ProcessedAt, msg.ProcessSuccess,
			msg.BridgeMsgType, msg.BridgeRecipient, msg.BridgeAmount, msg.BridgeAllowFast,
			msg.BridgeDetailsHash, msg.BridgeTokenDomain, msg.BridgeTokenID,
		)
	}
	query, args, err := q.Suffix(r.upsertSuffix()).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("can't upsert messages: %w", err)
	}
	return nil
}

func (r *messagesRepo) GetByHash(ctx context.Context, hash common.Hash) (*entity.Message, error) {
	q, args, err := psql.Select("*").
		From(r.table).
		Where(sq.Eq{"hash": hash}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	msg := new(entity.Message)
	err = r.db.GetContext(ctx, msg, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get message: %w", err)
	}
	return msg, nil
}

func (r *messagesRepo) FindByOriginTxHash(ctx context.Context, txHash common.Hash) ([]*entity.Message, error) {
	msgs, err := r.find(ctx, psql.Select("*").
		From(r.table).
		Where(sq.Eq{"origin_tx_hash": txHash}).
		OrderBy("leaf_index"))
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, db.ErrNotFound
	}
	return msgs, nil
}

func (r *messagesRepo) Find(ctx context.Context, filter *entity.MessagesFilter) ([]*entity.Message, error) {
	if err := filter.Normalize(); err != nil {
		return nil, err
	}
	cond := sq.Eq{}
	if filter.Origin != nil {
		cond["origin"] = *filter.Origin
	}
	if filter.Destination != nil {
		cond["destination"] = *filter.Destination
	}
	if filter.Sender != nil {
		cond["sender"] = *filter.Sender
	}
	if filter.Recipient != nil {
		cond["recipient"] = *filter.Recipient
	}
	if filter.State != nil {
		cond["state"] = *filter.State
	}
	return r.find(ctx, psql.Select("*").
		From(r.table).
		Where(cond).
		OrderBy("id DESC").
		Limit(uint64(filter.Size)).
		Offset(uint64(filter.Offset())))
}

func (r *messagesRepo) FindByHashes(ctx context.Context, hashes []common.Hash) ([]*entity.Message, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	return r.find(ctx, psql.Select("*").
		From(r.table).
		Where(sq.Eq{"hash": hashes}))
}

func (r *messagesRepo) FindByOriginAndRoots(ctx context.Context, origin uint32, roots []common.Hash) ([]*entity.Message, error) {
	if len(roots) == 0 {
		return nil, nil
	}
	return r.find(ctx, psql.Select("*").
		From(r.table).
		Where(sq.Eq{"origin": origin, "root": roots}))
}

func (r *messagesRepo) FindByOriginAndNonces(ctx context.Context, origin uint32, nonces []uint32) ([]*entity.Message, error) {
	if len(nonces) == 0 {
		return nil, nil
	}
	values := make(pq.Int64Array, len(nonces))
	for i, nonce := range nonces {
		values[i] = int64(nonce)
	}
	return r.find(ctx, psql.Select("*").
		From(r.table).
		Where(sq.Eq{"origin": origin}).
		Where("nonce = ANY(?)", values))
}

func (r *messagesRepo) FindIncomplete(ctx context.Context, afterID uint, limit uint) ([]*entity.Message, error) {
	return r.find(ctx, psql.Select("*").
		From(r.table).
		Where(sq.Gt{"id": afterID}).
		Where(incompleteCondition).
		OrderBy("id").
		Limit(uint64(limit)))
}

func (r *messagesRepo) FindUnprocessed(ctx context.Context, origin uint32, limit uint) ([]*entity.Message, error) {
	return r.find(ctx, psql.Select("*").
		From(r.table).
		Where(sq.Eq{"origin": origin}).
		Where(sq.Lt{"state": entity.MessageStateProcessed}).
		OrderBy("dispatch_block", "leaf_index").
		Limit(uint64(limit)))
}

func (r *messagesRepo) ListHashes(ctx context.Context, origin *uint32) ([]common.Hash, error) {
	sel := psql.Select("hash").From(r.table)
	if origin != nil {
		sel = sel.Where(sq.Eq{"origin": *origin})
	}
	q, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	var hashes []common.Hash
	err = r.db.SelectContext(ctx, &hashes, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't list message hashes: %w", err)
	}
	return hashes, nil
}

func (r *messagesRepo) GetStats(ctx context.Context, origin uint32) (*entity.MessageStats, error) {
	q, args, err := psql.Select(
		"COUNT(*) AS dispatched",
		"COUNT(*) FILTER (WHERE state >= 1) AS updated",
		"COUNT(*) FILTER (WHERE state >= 2) AS relayed",
		"COUNT(*) FILTER (WHERE state >= 3) AS processed",
		"AVG(EXTRACT(EPOCH FROM updated_at - dispatched_at)) AS mean_update_time",
		"AVG(EXTRACT(EPOCH FROM relayed_at - COALESCE(updated_at, dispatched_at))) AS mean_relay_time",
		"AVG(EXTRACT(EPOCH FROM processed_at - COALESCE(relayed_at, updated_at, dispatched_at))) AS mean_process_time",
		"AVG(EXTRACT(EPOCH FROM processed_at - dispatched_at)) AS mean_e2e_time",
	).
		From(r.table).
		Where(sq.Eq{"origin": origin}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	stats := new(entity.MessageStats)
	err = r.db.GetContext(ctx, stats, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get message stats: %w", err)
	}
	return stats, nil
}

func (r *messagesRepo) find(ctx context.Context, sel sq.SelectBuilder) ([]*entity.Message, error) {
	q, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	msgs := make([]*entity.Message, 0, 10)
	err = r.db.SelectContext(ctx, &msgs, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't find messages: %w", err)
	}
	return msgs, nil
}
