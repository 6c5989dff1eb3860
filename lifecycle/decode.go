package lifecycle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/nomad-xyz/nomad-monitor/entity"
)

const (
	messageHeaderLength = 76
	tokenIDLength       = 36
	transferLength      = 97
)

const (
	actionTokenID      = 1
	actionMessage      = 2
	actionTransfer     = 3
	actionFastTransfer = 4
)

var ErrDecode = errors.New("can't decode message")

// Header is the fixed-size prefix of every protocol message.
type Header struct {
	Origin      uint32
	Sender      common.Hash
	Nonce       uint32
	Destination uint32
	Recipient   common.Hash
	Body        []byte
}

func ParseMessage(raw []byte) (*Header, error) {
	if len(raw) < messageHeaderLength {
		return nil, fmt.Errorf("message of %d bytes is shorter than header: %w", len(raw), ErrDecode)
	}
	return &Header{
		Origin:      binary.BigEndian.Uint32(raw[0:4]),
		Sender:      common.BytesToHash(raw[4:36]),
		Nonce:       binary.BigEndian.Uint32(raw[36:40]),
		Destination: binary.BigEndian.Uint32(raw[40:44]),
		Recipient:   common.BytesToHash(raw[44:76]),
		Body:        raw[messageHeaderLength:],
	}, nil
}

func MessageHash(raw []byte) common.Hash {
	return crypto.Keccak256Hash(raw)
}

type BridgeMessage struct {
	TokenDomain uint32
	TokenID     common.Hash
	Type        string
	Recipient   common.Hash
	Amount      *big.Int
	DetailsHash common.Hash
	AllowFast   bool
}

// DecodeBridgeMessage parses a BridgeRouter transfer body: token id
// (domain u32, id b32) followed by the transfer action
// (type u8, to b32, amount u256, details hash b32).
func DecodeBridgeMessage(body []byte) (*BridgeMessage, error) {
	if len(body) < tokenIDLength+1 {
		return nil, fmt.Errorf("bridge message of %d bytes is too short: %w", len(body), ErrDecode)
	}
	action := body[tokenIDLength:]
	var msgType string
	switch action[0] {
	case actionTransfer:
		msgType = entity.BridgeMsgTypeTransfer
	case actionFastTransfer:
		msgType = entity.BridgeMsgTypeFastTransfer
	case actionTokenID, actionMessage:
		return nil, fmt.Errorf("action type %d is not a transfer: %w", action[0], ErrDecode)
	default:
		return nil, fmt.Errorf("unknown action type %d: %w", action[0], ErrDecode)
	}
	if len(action) != transferLength {
		return nil, fmt.Errorf("transfer action of %d bytes, expected %d: %w", len(action), transferLength, ErrDecode)
	}
	return &BridgeMessage{
		TokenDomain: binary.BigEndian.Uint32(body[0:4]),
		TokenID:     common.BytesToHash(body[4:36]),
		Type:        msgType,
		Recipient:   common.BytesToHash(action[1:33]),
		Amount:      new(big.Int).SetBytes(action[33:65]),
		DetailsHash: common.BytesToHash(action[65:97]),
		AllowFast:   action[0] == actionFastTransfer,
	}, nil
}
