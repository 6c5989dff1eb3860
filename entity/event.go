package entity

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type EventKind string

const (
	EventKindDispatch EventKind = "dispatch"
	EventKindUpdate   EventKind = "update"
	EventKindRelay    EventKind = "relay"
	EventKindProcess  EventKind = "process"
	EventKindReceive  EventKind = "receive"
)

// EventMeta locates an event on the chain it was emitted on.
type EventMeta struct {
	Domain      uint32
	BlockNumber uint
	LogIndex    uint
	TxHash      common.Hash
	Timestamp   time.Time
}

func (m *EventMeta) Meta() *EventMeta {
	return m
}

type Event interface {
	Kind() EventKind
	Meta() *EventMeta
}

// DispatchEvent is emitted by Home when a message is enqueued.
type DispatchEvent struct {
	EventMeta
	MessageHash   common.Hash
	LeafIndex     uint64
	Destination   uint32
	Nonce         uint32
	CommittedRoot common.Hash
	Message       []byte
}

func (*DispatchEvent) Kind() EventKind { return EventKindDispatch }

// UpdateEvent is emitted by Home when a new root is committed.
type UpdateEvent struct {
	EventMeta
	HomeDomain uint32
	OldRoot    common.Hash
	NewRoot    common.Hash
}

func (*UpdateEvent) Kind() EventKind { return EventKindUpdate }

// RelayEvent is the Update event of a Replica, it delivers a root of a remote Home.
type RelayEvent struct {
	EventMeta
	HomeDomain uint32
	OldRoot    common.Hash
	NewRoot    common.Hash
}

func (*RelayEvent) Kind() EventKind { return EventKindRelay }

type ProcessEvent struct {
	EventMeta
	MessageHash common.Hash
	Success     bool
}

func (*ProcessEvent) Kind() EventKind { return EventKindProcess }

// ReceiveEvent is emitted by BridgeRouter on the destination chain.
type ReceiveEvent struct {
	EventMeta
	Origin    uint32
	Nonce     uint32
	Token     common.Address
	Recipient common.Address
}

func (*ReceiveEvent) Kind() EventKind { return EventKindReceive }
