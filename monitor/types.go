package monitor

import (
	"sync/atomic"
)

type BlocksRange struct {
	From uint
	To   uint
}

func SplitBlockRange(fromBlock uint, toBlock uint, maxSize uint) []*BlocksRange {
	batches := make([]*BlocksRange, 0, 10)
	for fromBlock <= toBlock {
		batchToBlock := fromBlock + maxSize - 1
		if batchToBlock > toBlock {
			batchToBlock = toBlock
		}
		batches = append(batches, &BlocksRange{
			From: fromBlock,
			To:   batchToBlock,
		})
		fromBlock += maxSize
	}
	return batches
}

// PassState is the stage of the chain indexer pass in progress.
type PassState int32

const (
	PassStateIdle PassState = iota
	PassStateFetching
	PassStateReconciling
	PassStateCommitting
	PassStateFailed
)

var passStateNames = [...]string{"idle", "fetching", "reconciling", "committing", "failed"}

func (s PassState) String() string {
	if s >= 0 && int(s) < len(passStateNames) {
		return passStateNames[s]
	}
	return "unknown"
}

type passStateHolder struct {
	v atomic.Int32
}

func (h *passStateHolder) Load() PassState {
	return PassState(h.v.Load())
}

func (h *passStateHolder) Store(s PassState) {
	h.v.Store(int32(s))
}
