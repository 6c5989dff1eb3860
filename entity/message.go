package entity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultPageSize = 15
	MaxPageSize     = 30
)

var (
	ErrPageSizeTooLarge = fmt.Errorf("maximum page size is %d", MaxPageSize)
	ErrUnknownState     = errors.New("unknown message state")
)

type MessageState uint8

const (
	MessageStateDispatched MessageState = iota
	MessageStateIncluded
	MessageStateRelayed
	MessageStateProcessed
)

var messageStateNames = [...]string{"dispatched", "included", "relayed", "processed"}

func (s MessageState) String() string {
	if int(s) < len(messageStateNames) {
		return messageStateNames[s]
	}
	return "unknown"
}

// ParseMessageState accepts either a state name or its ordinal.
func ParseMessageState(str string) (MessageState, error) {
	str = strings.ToLower(strings.TrimSpace(str))
	for i, name := range messageStateNames {
		if name == str {
			return MessageState(i), nil
		}
	}
	n, err := strconv.ParseUint(str, 10, 8)
	if err != nil || n > uint64(MessageStateProcessed) {
		return 0, fmt.Errorf("%q: %w", str, ErrUnknownState)
	}
	return MessageState(n), nil
}

type Message struct {
	ID                uint         `db:"id"`
	Hash              common.Hash  `db:"hash"`
	Origin            uint32       `db:"origin"`
	Destination       uint32       `db:"destination"`
	Nonce             uint32       `db:"nonce"`
	Sender            *common.Hash `db:"sender"`
	Recipient         *common.Hash `db:"recipient"`
	Root              common.Hash  `db:"root"`
	LeafIndex         uint64       `db:"leaf_index"`
	RawBody           []byte       `db:"raw_body"`
	State             MessageState `db:"state"`
	DispatchBlock     uint         `db:"dispatch_block"`
	OriginTxHash      common.Hash  `db:"origin_tx_hash"`
	DispatchedAt      *time.Time   `db:"dispatched_at"`
	UpdatedAt         *time.Time   `db:"updated_at"`
	RelayedAt         *time.Time   `db:"relayed_at"`
	ReceivedAt        *time.Time   `db:"received_at"`
	ProcessedAt       *time.Time   `db:"processed_at"`
	ProcessSuccess    *bool        `db:"process_success"`
	BridgeMsgType     *string      `db:"bridge_msg_type"`
	BridgeRecipient   *common.Hash `db:"bridge_recipient"`
	BridgeAmount      *string      `db:"bridge_amount"`
	BridgeAllowFast   *bool        `db:"bridge_allow_fast"`
	BridgeDetailsHash *common.Hash `db:"bridge_details_hash"`
	BridgeTokenDomain *uint32      `db:"bridge_token_domain"`
	BridgeTokenID     *common.Hash `db:"bridge_token_id"`
	CreatedAt         *time.Time   `db:"created_at"`
}

const (
	BridgeMsgTypeTransfer     = "transfer"
	BridgeMsgTypeFastTransfer = "fastTransfer"
)

// IsTransfer reports whether the destination BridgeRouter emits Receive for the message.
func (m *Message) IsTransfer() bool {
	return m.BridgeMsgType != nil && (*m.BridgeMsgType == BridgeMsgTypeTransfer || *m.BridgeMsgType == BridgeMsgTypeFastTransfer)
}

// IsComplete reports whether the message reached its final lifecycle stage.
func (m *Message) IsComplete() bool {
	return m.State == MessageStateProcessed && (!m.IsTransfer() || m.ReceivedAt != nil)
}

type MessagesFilter struct {
	Origin      *uint32
	Destination *uint32
	Sender      *common.Hash
	Recipient   *common.Hash
	State       *MessageState
	Page        uint
	Size        uint
}

// Normalize applies default paging and rejects pages above MaxPageSize.
func (f *MessagesFilter) Normalize() error {
	if f.Size > MaxPageSize {
		return ErrPageSizeTooLarge
	}
	if f.Size == 0 {
		f.Size = DefaultPageSize
	}
	if f.Page == 0 {
		f.Page = 1
	}
	return nil
}

func (f *MessagesFilter) Offset() uint {
	return (f.Page - 1) * f.Size
}

type MessageStats struct {
	Dispatched      uint     `db:"dispatched"`
	Updated         uint     `db:"updated"`
	Relayed         uint     `db:"relayed"`
	Processed       uint     `db:"processed"`
	MeanUpdateTime  *float64 `db:"mean_update_time"`
	MeanRelayTime   *float64 `db:"mean_relay_time"`
	MeanProcessTime *float64 `db:"mean_process_time"`
	MeanE2ETime     *float64 `db:"mean_e2e_time"`
}

func (s *MessageStats) Unprocessed() uint {
	return s.Dispatched - s.Processed
}

type MessagesRepo interface {
	Upsert(ctx context.Context, msgs ...*Message) error
	GetByHash(ctx context.Context, hash common.Hash) (*Message, error)
	FindByOriginTxHash(ctx context.Context, txHash common.Hash) ([]*Message, error)
	Find(ctx context.Context, filter *MessagesFilter) ([]*Message, error)
	FindByHashes(ctx context.Context, hashes []common.Hash) ([]*Message, error)
	FindByOriginAndRoots(ctx context.Context, origin uint32, roots []common.Hash) ([]*Message, error)
	FindByOriginAndNonces(ctx context.Context, origin uint32, nonces []uint32) ([]*Message, error)
	FindIncomplete(ctx context.Context, afterID uint, limit uint) ([]*Message, error)
	FindUnprocessed(ctx context.Context, origin uint32, limit uint) ([]*Message, error)
	ListHashes(ctx context.Context, origin *uint32) ([]common.Hash, error)
	GetStats(ctx context.Context, origin uint32) (*MessageStats, error)
}
