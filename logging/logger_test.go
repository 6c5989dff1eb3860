package logging_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/nomad-xyz/nomad-monitor/logging"
)

func TestLoggerFromContext(t *testing.T) {
	t.Parallel()

	logger := logging.New().WithField("chain", "ethereum")
	ctx := logging.WithLogger(context.Background(), logger)
	require.Equal(t, logger, logging.LoggerFromContext(ctx))
	require.NotNil(t, logging.LoggerFromContext(context.Background()))
}

func TestSetLevel(t *testing.T) {
	t.Parallel()

	logger := logging.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.WithFields(logrus.Fields{"domain": 1}).Debug("debug message")
}
