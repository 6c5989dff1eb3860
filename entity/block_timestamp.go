package entity

import (
	"context"
	"time"
)

// BlockTimestamp caches the header time of a block so re-indexing a range
// does not fetch headers again.
type BlockTimestamp struct {
	Domain      uint32     `db:"domain"`
	BlockNumber uint       `db:"block_number"`
	Timestamp   time.Time  `db:"timestamp"`
	CreatedAt   *time.Time `db:"created_at"`
}

// TimestampsByBlock indexes timestamps by block number.
func TimestampsByBlock(timestamps []*BlockTimestamp) map[uint]time.Time {
	res := make(map[uint]time.Time, len(timestamps))
	for _, ts := range timestamps {
		res[ts.BlockNumber] = ts.Timestamp
	}
	return res
}

type BlockTimestampsRepo interface {
	Ensure(ctx context.Context, ts ...*BlockTimestamp) error
	FindByBlockNumbers(ctx context.Context, domain uint32, blockNumbers []uint) ([]*BlockTimestamp, error)
}
