// Package source reads typed Nomad events from contract logs.
package source

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/nomad-xyz/nomad-monitor/contract/abi"
	"github.com/nomad-xyz/nomad-monitor/entity"
	"github.com/nomad-xyz/nomad-monitor/ethclient"
)

var (
	ErrTransientQuery  = errors.New("transient query error")
	ErrFatalQuery      = errors.New("fatal query error")
	ErrUnsupportedKind = errors.New("unsupported event kind")
	ErrInvalidRange    = errors.New("invalid block range")
)

const defaultMaxRange = 1000

// QueryError describes a failed logs request for one window of the iterated range.
type QueryError struct {
	Kind      entity.EventKind
	Address   common.Address
	FromBlock uint
	ToBlock   uint
	Transient bool
	Err       error
}

func (e *QueryError) Error() string {
	class := "fatal"
	if e.Transient {
		class = "transient"
	}
	return fmt.Sprintf("%s %s query for %s in blocks [%d, %d]: %v", class, e.Kind, e.Address, e.FromBlock, e.ToBlock, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func (e *QueryError) Is(target error) bool {
	switch target {
	case ErrTransientQuery:
		return e.Transient
	case ErrFatalQuery:
		return !e.Transient
	default:
		return false
	}
}

// Query selects one event kind of one contract in the inclusive block range [From, To].
type Query struct {
	Domain   uint32
	Address  common.Address
	Kind     entity.EventKind
	From     uint
	To       uint
	MaxRange uint
	Safe     bool
}

type eventSource struct {
	abi  *abi.ABI
	name string
}

var eventSources = map[entity.EventKind]eventSource{
	entity.EventKindDispatch: {&abi.HomeABI, "Dispatch"},
	entity.EventKindUpdate:   {&abi.HomeABI, "Update"},
	entity.EventKindRelay:    {&abi.ReplicaABI, "Update"},
	entity.EventKindProcess:  {&abi.ReplicaABI, "Process"},
	entity.EventKindReceive:  {&abi.BridgeRouterABI, "Receive"},
}

// Iterator lazily pages through the logs matching a Query. A failed Next keeps
// the position, so the next call to Next retries the same window.
type Iterator struct {
	client ethclient.Client
	q      Query
	src    eventSource
	topic  common.Hash

	pos    uint
	window uint
	done   bool
	buf    []entity.Event
	cur    entity.Event
	err    error
}

func NewIterator(client ethclient.Client, q Query) (*Iterator, error) {
	src, ok := eventSources[q.Kind]
	if !ok {
		return nil, fmt.Errorf("%q: %w", q.Kind, ErrUnsupportedKind)
	}
	if q.From > q.To {
		return nil, fmt.Errorf("[%d, %d]: %w", q.From, q.To, ErrInvalidRange)
	}
	if q.MaxRange == 0 {
		q.MaxRange = defaultMaxRange
	}
	topic, err := src.abi.EventTopic(src.name)
	if err != nil {
		return nil, err
	}
	it := &Iterator{
		client: client,
		q:      q,
		src:    src,
		topic:  topic,
	}
	it.Reset()
	return it, nil
}

// Reset rewinds the iterator to the beginning of the range.
func (it *Iterator) Reset() {
	it.pos = it.q.From
	it.window = it.q.MaxRange
	it.done = false
	it.buf = nil
	it.cur = nil
	it.err = nil
}

func (it *Iterator) Event() entity.Event {
	return it.cur
}

func (it *Iterator) Err() error {
	return it.err
}

// Window returns the current window size, it shrinks after range-too-large replies.
func (it *Iterator) Window() uint {
	return it.window
}

func (it *Iterator) Next(ctx context.Context) bool {
	it.err = nil
	for len(it.buf) == 0 {
		if it.done {
			it.cur = nil
			return false
		}
		end := it.pos + it.window - 1
		if end > it.q.To || end < it.pos {
			end = it.q.To
		}
		events, err := it.fetch(ctx, it.pos, end)
		if err != nil {
			if ethclient.ClassifyError(err) == ethclient.ErrorClassRangeTooLarge && it.window > 1 {
				it.window /= 2
				continue
			}
			it.err = it.newQueryError(err, end)
			it.cur = nil
			return false
		}
		it.buf = events
		if end == it.q.To {
			it.done = true
		} else {
			it.pos = end + 1
		}
	}
	it.cur = it.buf[0]
	it.buf = it.buf[1:]
	return true
}

func (it *Iterator) newQueryError(err error, end uint) *QueryError {
	var decodeErr *DecodeError
	transient := false
	if !errors.As(err, &decodeErr) {
		transient = ethclient.ClassifyError(err) == ethclient.ErrorClassTransient
	}
	return &QueryError{
		Kind:      it.q.Kind,
		Address:   it.q.Address,
		FromBlock: it.pos,
		ToBlock:   end,
		Transient: transient,
		Err:       err,
	}
}

func (it *Iterator) fetch(ctx context.Context, from, to uint) ([]entity.Event, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(uint64(from)),
		ToBlock:   new(big.Int).SetUint64(uint64(to)),
		Addresses: []common.Address{it.q.Address},
		Topics:    [][]common.Hash{{it.topic}},
	}
	var logs []types.Log
	var err error
	if it.q.Safe {
		logs, err = it.client.FilterLogsSafe(ctx, q)
	} else {
		logs, err = it.client.FilterLogs(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(logs, func(i, j int) bool {
		a, b := logs[i], logs[j]
		return a.BlockNumber < b.BlockNumber || (a.BlockNumber == b.BlockNumber && a.Index < b.Index)
	})
	events := make([]entity.Event, 0, len(logs))
	for i := range logs {
		if logs[i].Removed {
			continue
		}
		event, err := DecodeLog(it.q.Domain, it.q.Kind, it.src.abi, &logs[i])
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}
