package entity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nomad-xyz/nomad-monitor/entity"
)

func TestTimestampsByBlock(t *testing.T) {
	t.Parallel()

	t1 := time.Unix(1_650_000_000, 0).UTC()
	t2 := t1.Add(12 * time.Second)
	res := entity.TimestampsByBlock([]*entity.BlockTimestamp{
		{Domain: 1000, BlockNumber: 10, Timestamp: t1},
		{Domain: 1000, BlockNumber: 11, Timestamp: t2},
	})
	require.Equal(t, map[uint]time.Time{10: t1, 11: t2}, res)
	require.Empty(t, entity.TimestampsByBlock(nil))
}
