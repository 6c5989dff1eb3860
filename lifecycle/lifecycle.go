package lifecycle

import (
	"fmt"
	"time"

	"github.com/nomad-xyz/nomad-monitor/entity"
)

// FromDispatchEvent builds a new message in the Dispatched state. Bridge
// fields are filled only when the body decodes as a transfer.
func FromDispatchEvent(ev *entity.DispatchEvent) (*entity.Message, error) {
	header, err := ParseMessage(ev.Message)
	if err != nil {
		return nil, err
	}
	if hash := MessageHash(ev.Message); hash != ev.MessageHash {
		return nil, fmt.Errorf("message hash %s does not match event hash %s: %w", hash, ev.MessageHash, ErrDecode)
	}
	ts := ev.Timestamp
	msg := &entity.Message{
		Hash:          ev.MessageHash,
		Origin:        header.Origin,
		Destination:   header.Destination,
		Nonce:         header.Nonce,
		Sender:        &header.Sender,
		Recipient:     &header.Recipient,
		Root:          ev.CommittedRoot,
		LeafIndex:     ev.LeafIndex,
		RawBody:       ev.Message,
		State:         entity.MessageStateDispatched,
		DispatchBlock: ev.BlockNumber,
		OriginTxHash:  ev.TxHash,
		DispatchedAt:  &ts,
	}
	if bridgeMsg, err2 := DecodeBridgeMessage(header.Body); err2 == nil {
		amount := bridgeMsg.Amount.String()
		msg.BridgeMsgType = &bridgeMsg.Type
		msg.BridgeRecipient = &bridgeMsg.Recipient
		msg.BridgeAmount = &amount
		msg.BridgeAllowFast = &bridgeMsg.AllowFast
		msg.BridgeDetailsHash = &bridgeMsg.DetailsHash
		msg.BridgeTokenDomain = &bridgeMsg.TokenDomain
		msg.BridgeTokenID = &bridgeMsg.TokenID
	}
	return msg, nil
}

// advance returns a copy of msg with state raised to state and *stage set to
// ts, each only when it moves forward. The input is returned when nothing changes.
func advance(msg *entity.Message, state entity.MessageState, ts time.Time, stage func(*entity.Message) **time.Time) (*entity.Message, bool) {
	stateChanged := msg.State < state
	stageChanged := *stage(msg) == nil
	if !stateChanged && !stageChanged {
		return msg, false
	}
	res := *msg
	if stateChanged {
		res.State = state
	}
	if stageChanged {
		*stage(&res) = &ts
	}
	return &res, true
}

func ApplyUpdateEvent(msg *entity.Message, ev *entity.UpdateEvent) (*entity.Message, bool) {
	if !MatchesUpdate(msg, ev) {
		return msg, false
	}
	return advance(msg, entity.MessageStateIncluded, ev.Timestamp, func(m *entity.Message) **time.Time {
		return &m.UpdatedAt
	})
}

func ApplyRelayEvent(msg *entity.Message, ev *entity.RelayEvent) (*entity.Message, bool) {
	if !MatchesRelay(msg, ev) {
		return msg, false
	}
	return advance(msg, entity.MessageStateRelayed, ev.Timestamp, func(m *entity.Message) **time.Time {
		return &m.RelayedAt
	})
}

func ApplyProcessEvent(msg *entity.Message, ev *entity.ProcessEvent) (*entity.Message, bool) {
	if !MatchesProcess(msg, ev) {
		return msg, false
	}
	res, changed := advance(msg, entity.MessageStateProcessed, ev.Timestamp, func(m *entity.Message) **time.Time {
		return &m.ProcessedAt
	})
	if changed && res.ProcessSuccess == nil {
		success := ev.Success
		res.ProcessSuccess = &success
	}
	return res, changed
}

// ApplyReceiveEvent only fills received_at, Receive does not move the state.
func ApplyReceiveEvent(msg *entity.Message, ev *entity.ReceiveEvent) (*entity.Message, bool) {
	if !MatchesReceive(msg, ev) || msg.ReceivedAt != nil {
		return msg, false
	}
	res := *msg
	ts := ev.Timestamp
	res.ReceivedAt = &ts
	return &res, true
}

// Apply dispatches ev to the matching transition.
func Apply(msg *entity.Message, ev entity.Event) (*entity.Message, bool) {
	switch e := ev.(type) {
	case *entity.UpdateEvent:
		return ApplyUpdateEvent(msg, e)
	case *entity.RelayEvent:
		return ApplyRelayEvent(msg, e)
	case *entity.ProcessEvent:
		return ApplyProcessEvent(msg, e)
	case *entity.ReceiveEvent:
		return ApplyReceiveEvent(msg, e)
	default:
		return msg, false
	}
}

func MatchesUpdate(msg *entity.Message, ev *entity.UpdateEvent) bool {
	return msg.Origin == ev.HomeDomain && msg.Root == ev.OldRoot
}

func MatchesRelay(msg *entity.Message, ev *entity.RelayEvent) bool {
	return msg.Origin == ev.HomeDomain && msg.Destination == ev.Domain && msg.Root == ev.OldRoot
}

func MatchesProcess(msg *entity.Message, ev *entity.ProcessEvent) bool {
	return msg.Hash == ev.MessageHash
}

func MatchesReceive(msg *entity.Message, ev *entity.ReceiveEvent) bool {
	return msg.Origin == ev.Origin && msg.Nonce == ev.Nonce && msg.Destination == ev.Domain
}

// Merge combines two observations of the same message. Immutable fields and
// already set timestamps of existing win, state takes the maximum.
func Merge(existing, incoming *entity.Message) *entity.Message {
	if existing == nil {
		return incoming
	}
	res := *existing
	if incoming.State > res.State {
		res.State = incoming.State
	}
	mergeTime(&res.DispatchedAt, incoming.DispatchedAt)
	mergeTime(&res.UpdatedAt, incoming.UpdatedAt)
	mergeTime(&res.RelayedAt, incoming.RelayedAt)
	mergeTime(&res.ReceivedAt, incoming.ReceivedAt)
	mergeTime(&res.ProcessedAt, incoming.ProcessedAt)
	if res.ProcessSuccess == nil {
		res.ProcessSuccess = incoming.ProcessSuccess
	}
	if res.Sender == nil {
		res.Sender = incoming.Sender
	}
	if res.Recipient == nil {
		res.Recipient = incoming.Recipient
	}
	if res.BridgeMsgType == nil {
		res.BridgeMsgType = incoming.BridgeMsgType
		res.BridgeRecipient = incoming.BridgeRecipient
		res.BridgeAmount = incoming.BridgeAmount
		res.BridgeAllowFast = incoming.BridgeAllowFast
		res.BridgeDetailsHash = incoming.BridgeDetailsHash
		res.BridgeTokenDomain = incoming.BridgeTokenDomain
		res.BridgeTokenID = incoming.BridgeTokenID
	}
	return &res
}

func mergeTime(dst **time.Time, src *time.Time) {
	if *dst == nil && src != nil {
		*dst = src
	}
}
