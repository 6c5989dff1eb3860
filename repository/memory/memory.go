// Package memory keeps repositories in process memory, it backs tests and dry runs.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nomad-xyz/nomad-monitor/db"
	"github.com/nomad-xyz/nomad-monitor/entity"
	"github.com/nomad-xyz/nomad-monitor/lifecycle"
	"github.com/nomad-xyz/nomad-monitor/repository"
)

func NewRepo() *repository.Repo {
	return &repository.Repo{
		Messages:        NewMessagesRepo(),
		KVStorage:       NewKVStorageRepo(),
		StageEvents:     NewStageEventsRepo(),
		BlockTimestamps: NewBlockTimestampsRepo(),
	}
}

type MessagesRepo struct {
	mu     sync.RWMutex
	lastID uint
	byHash map[common.Hash]*entity.Message
}

func NewMessagesRepo() *MessagesRepo {
	return &MessagesRepo{
		byHash: make(map[common.Hash]*entity.Message),
	}
}

func (r *MessagesRepo) Upsert(_ context.Context, msgs ...*entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, msg := range msgs {
		existing, ok := r.byHash[msg.Hash]
		merged := lifecycle.Merge(existing, msg)
		if !ok {
			cp := *merged
			merged = &cp
			r.lastID++
			merged.ID = r.lastID
		}
		r.byHash[msg.Hash] = merged
	}
	return nil
}

func (r *MessagesRepo) GetByHash(_ context.Context, hash common.Hash) (*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, ok := r.byHash[hash]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (r *MessagesRepo) FindByOriginTxHash(_ context.Context, txHash common.Hash) ([]*entity.Message, error) {
	res := r.filter(func(msg *entity.Message) bool {
		return msg.OriginTxHash == txHash
	})
	if len(res) == 0 {
		return nil, db.ErrNotFound
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].LeafIndex < res[j].LeafIndex
	})
	return res, nil
}

func (r *MessagesRepo) Find(_ context.Context, filter *entity.MessagesFilter) ([]*entity.Message, error) {
	if err := filter.Normalize(); err != nil {
		return nil, err
	}
	res := r.filter(func(msg *entity.Message) bool {
		return (filter.Origin == nil || msg.Origin == *filter.Origin) &&
			(filter.Destination == nil || msg.Destination == *filter.Destination) &&
			(filter.Sender == nil || (msg.Sender != nil && *msg.Sender == *filter.Sender)) &&
			(filter.Recipient == nil || (msg.Recipient != nil && *msg.Recipient == *filter.Recipient)) &&
			(filter.State == nil || msg.State == *filter.State)
	})
	sort.Slice(res, func(i, j int) bool {
		return res[i].ID > res[j].ID
	})
	offset := filter.Offset()
	if offset >= uint(len(res)) {
		return []*entity.Message{}, nil
	}
	res = res[offset:]
	if uint(len(res)) > filter.Size {
		res = res[:filter.Size]
	}
	return res, nil
}

func (r *MessagesRepo) FindByHashes(_ context.Context, hashes []common.Hash) ([]*entity.Message, error) {
	set := make(map[common.Hash]bool, len(hashes))
	for _, hash := range hashes {
		set[hash] = true
	}
	return r.filter(func(msg *entity.Message) bool {
		return set[msg.Hash]
	}), nil
}

func (r *MessagesRepo) FindByOriginAndRoots(_ context.Context, origin uint32, roots []common.Hash) ([]*entity.Message, error) {
	set := make(map[common.Hash]bool, len(roots))
	for _, root := range roots {
		set[root] = true
	}
	return r.filter(func(msg *entity.Message) bool {
		return msg.Origin == origin && set[msg.Root]
	}), nil
}

func (r *MessagesRepo) FindByOriginAndNonces(_ context.Context, origin uint32, nonces []uint32) ([]*entity.Message, error) {
	set := make(map[uint32]bool, len(nonces))
	for _, nonce := range nonces {
		set[nonce] = true
	}
	return r.filter(func(msg *entity.Message) bool {
		return msg.Origin == origin && set[msg.Nonce]
	}), nil
}

func (r *MessagesRepo) FindIncomplete(_ context.Context, afterID uint, limit uint) ([]*entity.Message, error) {
	res := r.filter(func(msg *entity.Message) bool {
		return msg.ID > afterID && !msg.IsComplete()
	})
	sort.Slice(res, func(i, j int) bool {
		return res[i].ID < res[j].ID
	})
	if uint(len(res)) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *MessagesRepo) FindUnprocessed(_ context.Context, origin uint32, limit uint) ([]*entity.Message, error) {
	res := r.filter(func(msg *entity.Message) bool {
		return msg.Origin == origin && msg.State < entity.MessageStateProcessed
	})
	sort.Slice(res, func(i, j int) bool {
		if res[i].DispatchBlock != res[j].DispatchBlock {
			return res[i].DispatchBlock < res[j].DispatchBlock
		}
		return res[i].LeafIndex < res[j].LeafIndex
	})
	if uint(len(res)) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *MessagesRepo) ListHashes(_ context.Context, origin *uint32) ([]common.Hash, error) {
	msgs := r.filter(func(msg *entity.Message) bool {
		return origin == nil || msg.Origin == *origin
	})
	res := make([]common.Hash, len(msgs))
	for i, msg := range msgs {
		res[i] = msg.Hash
	}
	return res, nil
}

func (r *MessagesRepo) GetStats(_ context.Context, origin uint32) (*entity.MessageStats, error) {
	var updateTimes, relayTimes, processTimes, e2eTimes []float64
	stats := new(entity.MessageStats)
	for _, msg := range r.filter(func(msg *entity.Message) bool { return msg.Origin == origin }) {
		stats.Dispatched++
		if msg.State >= entity.MessageStateIncluded {
			stats.Updated++
		}
		if msg.State >= entity.MessageStateRelayed {
			stats.Relayed++
		}
		if msg.State >= entity.MessageStateProcessed {
			stats.Processed++
		}
		if msg.DispatchedAt == nil {
			continue
		}
		prev := *msg.DispatchedAt
		if msg.UpdatedAt != nil {
			updateTimes = append(updateTimes, msg.UpdatedAt.Sub(prev).Seconds())
			prev = *msg.UpdatedAt
		}
		if msg.RelayedAt != nil {
			relayTimes = append(relayTimes, msg.RelayedAt.Sub(prev).Seconds())
			prev = *msg.RelayedAt
		}
		if msg.ProcessedAt != nil {
			processTimes = append(processTimes, msg.ProcessedAt.Sub(prev).Seconds())
			e2eTimes = append(e2eTimes, msg.ProcessedAt.Sub(*msg.DispatchedAt).Seconds())
		}
	}
	stats.MeanUpdateTime = mean(updateTimes)
	stats.MeanRelayTime = mean(relayTimes)
	stats.MeanProcessTime = mean(processTimes)
	stats.MeanE2ETime = mean(e2eTimes)
	return stats, nil
}

func mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	res := sum / float64(len(values))
	return &res
}

func (r *MessagesRepo) filter(pred func(msg *entity.Message) bool) []*entity.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*entity.Message, 0, 10)
	for _, msg := range r.byHash {
		if pred(msg) {
			cp := *msg
			res = append(res, &cp)
		}
	}
	return res
}

type KVStorageRepo struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

func NewKVStorageRepo() *KVStorageRepo {
	return &KVStorageRepo{
		values: make(map[string]map[string]string),
	}
}

func (r *KVStorageRepo) Get(_ context.Context, namespace, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok := r.values[namespace][key]
	if !ok {
		return "", db.ErrNotFound
	}
	return value, nil
}

func (r *KVStorageRepo) Set(_ context.Context, namespace, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.values[namespace] == nil {
		r.values[namespace] = make(map[string]string)
	}
	r.values[namespace][key] = value
	return nil
}

func (r *KVStorageRepo) GetCursor(ctx context.Context, namespace string) (uint, error) {
	value, err := r.Get(ctx, namespace, entity.CursorKey)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(n), nil
}

func (r *KVStorageRepo) SetCursor(ctx context.Context, namespace string, blockNumber uint) error {
	return r.Set(ctx, namespace, entity.CursorKey, strconv.FormatUint(uint64(blockNumber), 10))
}

type stageEventKey struct {
	domain   uint32
	txHash   common.Hash
	logIndex uint
}

type StageEventsRepo struct {
	mu     sync.RWMutex
	keys   map[stageEventKey]bool
	events []*entity.StageEvent
}

func NewStageEventsRepo() *StageEventsRepo {
	return &StageEventsRepo{
		keys: make(map[stageEventKey]bool),
	}
}

func (r *StageEventsRepo) Ensure(_ context.Context, events ...*entity.StageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range events {
		key := stageEventKey{domain: e.Domain, txHash: e.TxHash, logIndex: e.LogIndex}
		if r.keys[key] {
			continue
		}
		r.keys[key] = true
		cp := *e
		cp.ID = uint(len(r.events) + 1)
		r.events = append(r.events, &cp)
	}
	return nil
}

func (r *StageEventsRepo) FindForMessages(_ context.Context, msgs []*entity.Message) ([]*entity.StageEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*entity.StageEvent, 0, 10)
	for _, e := range r.events {
		ev, err := e.Event()
		if err != nil {
			return nil, err
		}
		for _, msg := range msgs {
			if matches(msg, ev) {
				cp := *e
				res = append(res, &cp)
				break
			}
		}
	}
	return res, nil
}

func matches(msg *entity.Message, ev entity.Event) bool {
	switch e := ev.(type) {
	case *entity.UpdateEvent:
		return lifecycle.MatchesUpdate(msg, e)
	case *entity.RelayEvent:
		return lifecycle.MatchesRelay(msg, e)
	case *entity.ProcessEvent:
		return lifecycle.MatchesProcess(msg, e)
	case *entity.ReceiveEvent:
		return lifecycle.MatchesReceive(msg, e)
	default:
		return false
	}
}

type blockTimestampKey struct {
	domain      uint32
	blockNumber uint
}

type BlockTimestampsRepo struct {
	mu         sync.RWMutex
	timestamps map[blockTimestampKey]*entity.BlockTimestamp
}

func NewBlockTimestampsRepo() *BlockTimestampsRepo {
	return &BlockTimestampsRepo{
		timestamps: make(map[blockTimestampKey]*entity.BlockTimestamp),
	}
}

func (r *BlockTimestampsRepo) Ensure(_ context.Context, timestamps ...*entity.BlockTimestamp) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ts := range timestamps {
		key := blockTimestampKey{domain: ts.Domain, blockNumber: ts.BlockNumber}
		if _, ok := r.timestamps[key]; !ok {
			cp := *ts
			r.timestamps[key] = &cp
		}
	}
	return nil
}

func (r *BlockTimestampsRepo) FindByBlockNumbers(_ context.Context, domain uint32, blockNumbers []uint) ([]*entity.BlockTimestamp, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*entity.BlockTimestamp, 0, len(blockNumbers))
	for _, n := range blockNumbers {
		if ts, ok := r.timestamps[blockTimestampKey{domain: domain, blockNumber: n}]; ok {
			cp := *ts
			res = append(res, &cp)
		}
	}
	return res, nil
}
