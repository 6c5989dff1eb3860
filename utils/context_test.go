package utils_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nomad-xyz/nomad-monitor/utils"
)

type ctxKey struct{}

func TestSleep(t *testing.T) {
	t.Parallel()

	dur := 10 * time.Millisecond

	st := time.Now()
	require.True(t, utils.Sleep(context.Background(), dur))
	require.GreaterOrEqual(t, time.Since(st), dur)
}

func TestSleepCancel(t *testing.T) {
	t.Parallel()

	dur := 10 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), dur)
	defer cancel()

	st := time.Now()
	require.False(t, utils.Sleep(ctx, time.Second))
	require.Less(t, time.Since(st), 500*time.Millisecond)
}

func TestDetached(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "indexer"))
	cancel()

	ctx, stop := utils.Detached(parent, time.Minute)
	defer stop()

	require.NoError(t, ctx.Err())
	require.Equal(t, "indexer", ctx.Value(ctxKey{}))
	_, ok := ctx.Deadline()
	require.True(t, ok)
}
