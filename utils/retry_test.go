package utils_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nomad-xyz/nomad-monitor/utils"
)

var errTest = errors.New("test error")

func TestRetry(t *testing.T) {
	t.Parallel()

	policy := utils.RetryPolicy{
		MaxAttempts:  4,
		InitialDelay: time.Millisecond,
		Multiplier:   2,
	}

	for _, test := range []struct {
		Name             string
		Failures         int
		Permanent        bool
		ExpectedAttempts int
		ExpectedError    bool
	}{
		{
			Name:             "Succeeds on first attempt",
			Failures:         0,
			ExpectedAttempts: 1,
		},
		{
			Name:             "Succeeds after retries",
			Failures:         3,
			ExpectedAttempts: 4,
		},
		{
			Name:             "Gives up after max attempts",
			Failures:         10,
			ExpectedAttempts: 4,
			ExpectedError:    true,
		},
		{
			Name:             "Stops on permanent error",
			Failures:         10,
			Permanent:        true,
			ExpectedAttempts: 1,
			ExpectedError:    true,
		},
	} {
		t.Logf("Running sub-test %q", test.Name)
		attempts := 0
		var delays []time.Duration
		err := utils.Retry(context.Background(), policy, func() error {
			attempts++
			if attempts <= test.Failures {
				if test.Permanent {
					return utils.Permanent(errTest)
				}
				return errTest
			}
			return nil
		}, func(err error, next time.Duration) {
			delays = append(delays, next)
		})
		require.Equal(t, test.ExpectedAttempts, attempts, "Failed %s", test.Name)
		if test.ExpectedError {
			require.ErrorIs(t, err, errTest, "Failed %s", test.Name)
		} else {
			require.NoError(t, err, "Failed %s", test.Name)
		}
		for i := 1; i < len(delays); i++ {
			require.Equal(t, delays[i-1]*2, delays[i], "Failed %s", test.Name)
		}
	}
}

func TestRetryCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := utils.RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: time.Hour,
		Multiplier:   2,
	}
	attempts := 0
	err := utils.Retry(ctx, policy, func() error {
		attempts++
		return errTest
	}, nil)
	require.Error(t, err)
	require.LessOrEqual(t, attempts, 1)
}
