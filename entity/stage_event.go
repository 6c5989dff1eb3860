package entity

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var ErrUnsupportedEventKind = errors.New("unsupported event kind")

// StageEvent is a journal row of a non-dispatch lifecycle event.
type StageEvent struct {
	ID          uint         `db:"id"`
	Domain      uint32       `db:"domain"`
	Kind        EventKind    `db:"kind"`
	Origin      *uint32      `db:"origin"`
	OldRoot     *common.Hash `db:"old_root"`
	NewRoot     *common.Hash `db:"new_root"`
	MessageHash *common.Hash `db:"message_hash"`
	Nonce       *uint32      `db:"nonce"`
	Success     *bool        `db:"success"`
	BlockNumber uint         `db:"block_number"`
	LogIndex    uint         `db:"log_index"`
	TxHash      common.Hash  `db:"tx_hash"`
	Timestamp   time.Time    `db:"timestamp"`
	CreatedAt   *time.Time   `db:"created_at"`
}

func NewStageEvent(e Event) (*StageEvent, error) {
	meta := e.Meta()
	res := &StageEvent{
		Domain:      meta.Domain,
		Kind:        e.Kind(),
		BlockNumber: meta.BlockNumber,
		LogIndex:    meta.LogIndex,
		TxHash:      meta.TxHash,
		Timestamp:   meta.Timestamp,
	}
	switch ev := e.(type) {
	case *UpdateEvent:
		res.Origin = &ev.HomeDomain
		res.OldRoot = &ev.OldRoot
		res.NewRoot = &ev.NewRoot
	case *RelayEvent:
		res.Origin = &ev.HomeDomain
		res.OldRoot = &ev.OldRoot
		res.NewRoot = &ev.NewRoot
	case *ProcessEvent:
		res.MessageHash = &ev.MessageHash
		res.Success = &ev.Success
	case *ReceiveEvent:
		res.Origin = &ev.Origin
		res.Nonce = &ev.Nonce
	default:
		return nil, ErrUnsupportedEventKind
	}
	return res, nil
}

// Event restores the typed event the journal row was created from.
func (e *StageEvent) Event() (Event, error) {
	meta := EventMeta{
		Domain:      e.Domain,
		BlockNumber: e.BlockNumber,
		LogIndex:    e.LogIndex,
		TxHash:      e.TxHash,
		Timestamp:   e.Timestamp,
	}
	switch e.Kind {
	case EventKindUpdate:
		return &UpdateEvent{EventMeta: meta, HomeDomain: derefUint32(e.Origin), OldRoot: derefHash(e.OldRoot), NewRoot: derefHash(e.NewRoot)}, nil
	case EventKindRelay:
		return &RelayEvent{EventMeta: meta, HomeDomain: derefUint32(e.Origin), OldRoot: derefHash(e.OldRoot), NewRoot: derefHash(e.NewRoot)}, nil
	case EventKindProcess:
		return &ProcessEvent{EventMeta: meta, MessageHash: derefHash(e.MessageHash), Success: e.Success != nil && *e.Success}, nil
	case EventKindReceive:
		return &ReceiveEvent{EventMeta: meta, Origin: derefUint32(e.Origin), Nonce: derefUint32(e.Nonce)}, nil
	default:
		return nil, ErrUnsupportedEventKind
	}
}

func derefUint32(v *uint32) uint32 {
	if v == nil {
		return 0
	}
	return *v
}

func derefHash(v *common.Hash) common.Hash {
	if v == nil {
		return common.Hash{}
	}
	return *v
}

type StageEventsRepo interface {
	Ensure(ctx context.Context, events ...*StageEvent) error
	FindForMessages(ctx context.Context, msgs []*Message) ([]*StageEvent, error)
}
