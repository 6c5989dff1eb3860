package source

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/nomad-xyz/nomad-monitor/contract/abi"
	"github.com/nomad-xyz/nomad-monitor/entity"
)

// DecodeError marks a log that doesn't match the expected event ABI.
type DecodeError struct {
	TxHash   common.Hash
	LogIndex uint
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("can't decode log %s:%d: %v", e.TxHash, e.LogIndex, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// SplitDomainAndNonce unpacks the uint64 (domain << 32 | nonce) used by Dispatch and Receive.
func SplitDomainAndNonce(v uint64) (uint32, uint32) {
	return uint32(v >> 32), uint32(v)
}

func DecodeLog(domain uint32, kind entity.EventKind, contractABI *abi.ABI, log *types.Log) (entity.Event, error) {
	ev, err := decodeLog(domain, kind, contractABI, log)
	if err != nil {
		return nil, &DecodeError{TxHash: log.TxHash, LogIndex: log.Index, Err: err}
	}
	return ev, nil
}

func decodeLog(domain uint32, kind entity.EventKind, contractABI *abi.ABI, log *types.Log) (entity.Event, error) {
	event, values, err := contractABI.ParseLog(log)
	if err != nil {
		return nil, err
	}
	if event == "" {
		return nil, fmt.Errorf("unknown event with topic %s", log.Topics[0])
	}
	meta := entity.EventMeta{
		Domain:      domain,
		BlockNumber: uint(log.BlockNumber),
		LogIndex:    log.Index,
		TxHash:      log.TxHash,
	}
	d := &decoder{values: values}
	var ev entity.Event
	switch kind {
	case entity.EventKindDispatch:
		leafIndex := d.bigInt("leafIndex")
		destination, nonce := SplitDomainAndNonce(d.uint64("destinationAndNonce"))
		if d.err == nil && !leafIndex.IsUint64() {
			return nil, fmt.Errorf("leaf index %s overflows uint64", leafIndex)
		}
		ev = &entity.DispatchEvent{
			EventMeta:     meta,
			MessageHash:   d.hash("messageHash"),
			LeafIndex:     leafIndex.Uint64(),
			Destination:   destination,
			Nonce:         nonce,
			CommittedRoot: d.hash("committedRoot"),
			Message:       d.bytes("message"),
		}
	case entity.EventKindUpdate:
		ev = &entity.UpdateEvent{
			EventMeta:  meta,
			HomeDomain: d.uint32("homeDomain"),
			OldRoot:    d.hash("oldRoot"),
			NewRoot:    d.hash("newRoot"),
		}
	case entity.EventKindRelay:
		ev = &entity.RelayEvent{
			EventMeta:  meta,
			HomeDomain: d.uint32("homeDomain"),
			OldRoot:    d.hash("oldRoot"),
			NewRoot:    d.hash("newRoot"),
		}
	case entity.EventKindProcess:
		ev = &entity.ProcessEvent{
			EventMeta:   meta,
			MessageHash: d.hash("messageHash"),
			Success:     d.bool("success"),
		}
	case entity.EventKindReceive:
		origin, nonce := SplitDomainAndNonce(d.uint64("originAndNonce"))
		ev = &entity.ReceiveEvent{
			EventMeta: meta,
			Origin:    origin,
			Nonce:     nonce,
			Token:     d.address("token"),
			Recipient: d.address("recipient"),
		}
	default:
		return nil, fmt.Errorf("%q: %w", kind, ErrUnsupportedKind)
	}
	if d.err != nil {
		return nil, d.err
	}
	return ev, nil
}

// decoder extracts typed event arguments and remembers the first mismatch.
type decoder struct {
	values map[string]interface{}
	err    error
}

func field[T any](d *decoder, name string) T {
	var zero T
	if d.err != nil {
		return zero
	}
	raw, ok := d.values[name]
	if !ok {
		d.err = fmt.Errorf("missing argument %q", name)
		return zero
	}
	v, ok := raw.(T)
	if !ok {
		d.err = fmt.Errorf("argument %q has type %T, expected %T", name, raw, zero)
		return zero
	}
	return v
}

func (d *decoder) hash(name string) common.Hash {
	return field[[32]byte](d, name)
}

func (d *decoder) bigInt(name string) *big.Int {
	v := field[*big.Int](d, name)
	if v == nil {
		return new(big.Int)
	}
	return v
}

func (d *decoder) uint64(name string) uint64 {
	return field[uint64](d, name)
}

func (d *decoder) uint32(name string) uint32 {
	return field[uint32](d, name)
}

func (d *decoder) bool(name string) bool {
	return field[bool](d, name)
}

func (d *decoder) bytes(name string) []byte {
	return field[[]byte](d, name)
}

func (d *decoder) address(name string) common.Address {
	return field[common.Address](d, name)
}
