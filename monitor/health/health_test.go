package health_test

import (
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/nomad-xyz/nomad-monitor/config"
	"github.com/nomad-xyz/nomad-monitor/entity"
	"github.com/nomad-xyz/nomad-monitor/ethclient"
	"github.com/nomad-xyz/nomad-monitor/logging"
	"github.com/nomad-xyz/nomad-monitor/monitor/health"
	"github.com/nomad-xyz/nomad-monitor/repository"
	"github.com/nomad-xyz/nomad-monitor/repository/memory"
	"github.com/nomad-xyz/nomad-monitor/utils"
)

type stateClient struct {
	ethclient.Client
	state byte
	err   error
}

func (c *stateClient) CallContract(context.Context, ethereum.CallMsg) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	return common.LeftPadBytes([]byte{c.state}, 32), nil
}

type rpcError struct {
	code int
	msg  string
}

func (e *rpcError) Error() string  { return e.msg }
func (e *rpcError) ErrorCode() int { return e.code }

func newConfig(env config.Environment, names ...string) *config.Config {
	cfg := &config.Config{
		Environment: env,
		Chains:      make(map[string]*config.ChainConfig),
		Indexer: &config.IndexerConfig{
			Retry: utils.RetryPolicy{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 2},
		},
		Health: &config.HealthConfig{
			Interval:         time.Millisecond,
			Timeout:          time.Second,
			UnprocessedLimit: 100,
		},
	}
	for i, name := range names {
		cfg.Chains[name] = &config.ChainConfig{
			Name:   name,
			Domain: uint32(1000 * (i + 1)),
			Home:   common.BigToAddress(big.NewInt(int64(i + 1))),
		}
	}
	return cfg
}

// seedMessages stores count messages dispatched from origin, the first processed of them are processed.
func seedMessages(t *testing.T, repo *repository.Repo, origin uint32, count, processed int) {
	t.Helper()

	base := time.Unix(1650000000, 0).UTC()
	msgs := make([]*entity.Message, 0, count)
	for i := 0; i < count; i++ {
		dispatched := base.Add(time.Duration(i) * time.Minute)
		msg := &entity.Message{
			Hash:          common.BigToHash(big.NewInt(int64(origin)*1000 + int64(i))),
			Origin:        origin,
			Destination:   9999,
			Nonce:         uint32(i),
			LeafIndex:     uint64(i),
			DispatchBlock: uint(100 - i),
			OriginTxHash:  common.BigToHash(big.NewInt(int64(i) + 1)),
			DispatchedAt:  &dispatched,
		}
		if i < processed {
			processedAt := dispatched.Add(10 * time.Minute)
			msg.State = entity.MessageStateProcessed
			msg.ProcessedAt = &processedAt
		}
		msgs = append(msgs, msg)
	}
	require.NoError(t, repo.Messages.Upsert(context.Background(), msgs...))
}

func TestMonitor_CheckChain(t *testing.T) {
	t.Parallel()

	repo := memory.NewRepo()
	cfg := newConfig(config.EnvironmentStaging, "moonbeam")
	chain := cfg.Chains["moonbeam"]
	seedMessages(t, repo, chain.Domain, 10, 7)
	m := health.NewMonitor(logging.New(), repo, cfg, map[string]ethclient.Client{
		"moonbeam": &stateClient{state: 1},
	})

	res, err := m.CheckChain(context.Background(), chain)
	require.NoError(t, err)
	require.Equal(t, uint(10), res.Stats.Dispatched)
	require.Equal(t, uint(7), res.Stats.Processed)
	require.Equal(t, uint(3), res.Unprocessed)
	require.False(t, res.HomeFailed)
	require.Len(t, res.Messages, 3)
	require.NotNil(t, res.Oldest)
	// message 9 has the lowest dispatch block
	require.Equal(t, uint(91), res.Oldest.DispatchBlock)
	require.Equal(t, common.BigToHash(big.NewInt(int64(chain.Domain)*1000+9)), res.Oldest.MessageHash)
	require.Equal(t, "dispatched", res.Oldest.State)
	require.NotNil(t, res.Stats.MeanE2ETime)
	require.InDelta(t, 600, *res.Stats.MeanE2ETime, 0.001)
}

func TestMonitor_CheckChainHomeFailed(t *testing.T) {
	t.Parallel()

	repo := memory.NewRepo()
	cfg := newConfig(config.EnvironmentProduction, "evmos")
	m := health.NewMonitor(logging.New(), repo, cfg, map[string]ethclient.Client{
		"evmos": &stateClient{state: 2},
	})

	res, err := m.CheckChain(context.Background(), cfg.Chains["evmos"])
	require.NoError(t, err)
	require.True(t, res.HomeFailed)
	require.Zero(t, res.Unprocessed)
	require.Nil(t, res.Oldest)
	require.Empty(t, res.Messages)
}

func TestMonitor_CheckSkipsFailedChains(t *testing.T) {
	t.Parallel()

	repo := memory.NewRepo()
	cfg := newConfig(config.EnvironmentDevelopment, "gamma", "delta", "epsilon")
	seedMessages(t, repo, cfg.Chains["gamma"].Domain, 4, 1)
	seedMessages(t, repo, cfg.Chains["delta"].Domain, 2, 2)
	m := health.NewMonitor(logging.New(), repo, cfg, map[string]ethclient.Client{
		"gamma": &stateClient{state: 1},
		"delta": &stateClient{err: &rpcError{code: -32602, msg: "invalid params"}},
	})

	results := m.Check(context.Background())
	require.Len(t, results, 1)
	require.Equal(t, "gamma", results[0].Network)

	l := prometheus.Labels{"network": "gamma", "environment": "development"}
	require.Equal(t, 4.0, testutil.ToFloat64(health.DispatchedMessages.With(l)))
	require.Equal(t, 3.0, testutil.ToFloat64(health.UnprocessedMessages.With(l)))
	require.Equal(t, 97.0, testutil.ToFloat64(health.OldestUnprocessed.With(l)))
	require.Equal(t, 0.0, testutil.ToFloat64(health.HomeFailed.With(l)))
}

// drainedMessagesRepo reports no unprocessed messages, as if every one of them
// got processed right after the stats were read.
type drainedMessagesRepo struct {
	entity.MessagesRepo
}

func (r *drainedMessagesRepo) FindUnprocessed(context.Context, uint32, uint) ([]*entity.Message, error) {
	return nil, nil
}

func TestMonitor_CheckProcessedBetweenReads(t *testing.T) {
	t.Parallel()

	repo := memory.NewRepo()
	cfg := newConfig(config.EnvironmentStaging, "kappa")
	chain := cfg.Chains["kappa"]
	seedMessages(t, repo, chain.Domain, 10, 7)
	repo.Messages = &drainedMessagesRepo{MessagesRepo: repo.Messages}
	m := health.NewMonitor(logging.New(), repo, cfg, map[string]ethclient.Client{
		"kappa": &stateClient{state: 1},
	})

	var results []*health.ChainHealth
	require.NotPanics(t, func() {
		results = m.Check(context.Background())
	})
	require.Len(t, results, 1)
	require.Equal(t, uint(3), results[0].Stats.Unprocessed())
	require.Zero(t, results[0].Unprocessed)
	require.Nil(t, results[0].Oldest)

	l := prometheus.Labels{"network": "kappa", "environment": "staging"}
	require.Equal(t, 0.0, testutil.ToFloat64(health.UnprocessedMessages.With(l)))
	require.Equal(t, 0.0, testutil.ToFloat64(health.OldestUnprocessed.With(l)))
}

func TestWriteReport(t *testing.T) {
	t.Parallel()

	repo := memory.NewRepo()
	cfg := newConfig(config.EnvironmentStaging, "xdai")
	seedMessages(t, repo, cfg.Chains["xdai"].Domain, 3, 1)
	m := health.NewMonitor(logging.New(), repo, cfg, map[string]ethclient.Client{
		"xdai": &stateClient{state: 1},
	})
	path := filepath.Join(t.TempDir(), "unprocessed.json")

	require.NoError(t, health.WriteReport(path, m.Check(context.Background())))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var report map[string][]*health.UnprocessedMessage
	require.NoError(t, json.Unmarshal(raw, &report))
	require.Len(t, report["xdai"], 2)
	require.Equal(t, uint(98), report["xdai"][0].DispatchBlock)
	require.Equal(t, "xdai", report["xdai"][0].Network)
}

func TestMonitor_RunWritesReport(t *testing.T) {
	t.Parallel()

	repo := memory.NewRepo()
	cfg := newConfig(config.EnvironmentStaging, "avalanche")
	cfg.Health.UnprocessedFile = filepath.Join(t.TempDir(), "unprocessed.json")
	seedMessages(t, repo, cfg.Chains["avalanche"].Domain, 2, 0)
	m := health.NewMonitor(logging.New(), repo, cfg, map[string]ethclient.Client{
		"avalanche": &stateClient{state: 1},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.Health.UnprocessedFile)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}
