package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunServices_FailureStopsOthers(t *testing.T) {
	t.Parallel()

	errListen := errors.New("listen tcp :3333: bind: address already in use")
	stopped := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- runServices(context.Background(),
			func(ctx context.Context) error {
				<-ctx.Done()
				close(stopped)
				return nil
			},
			func(context.Context) error {
				return errListen
			},
		)
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, errListen)
	case <-time.After(5 * time.Second):
		t.Fatal("runServices did not return after a service failed")
	}
	<-stopped
}

func TestRunServices_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runServices(ctx,
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
	)
	require.NoError(t, err)
}
