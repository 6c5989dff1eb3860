package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/nomad-xyz/nomad-monitor/config"
	"github.com/nomad-xyz/nomad-monitor/contract"
	"github.com/nomad-xyz/nomad-monitor/entity"
	"github.com/nomad-xyz/nomad-monitor/ethclient"
	"github.com/nomad-xyz/nomad-monitor/logging"
	"github.com/nomad-xyz/nomad-monitor/repository"
	"github.com/nomad-xyz/nomad-monitor/utils"
)

var ErrMissingClient = errors.New("rpc client is not configured")

type UnprocessedMessage struct {
	Network       string      `json:"network"`
	Origin        uint32      `json:"origin"`
	Destination   uint32      `json:"destination"`
	OriginTxHash  common.Hash `json:"origin_tx_hash"`
	MessageHash   common.Hash `json:"message_hash"`
	LeafIndex     uint64      `json:"leaf_index"`
	DispatchBlock uint        `json:"dispatch_block"`
	State         string      `json:"state"`
	DispatchedAt  *time.Time  `json:"dispatched_at,omitempty"`
}

type ChainHealth struct {
	Network     string                `json:"network"`
	Domain      uint32                `json:"domain"`
	Stats       *entity.MessageStats  `json:"stats"`
	Unprocessed uint                  `json:"unprocessed"`
	HomeFailed  bool                  `json:"home_failed"`
	Oldest      *UnprocessedMessage   `json:"oldest_unprocessed,omitempty"`
	Messages    []*UnprocessedMessage `json:"unprocessed_messages"`
}

// Monitor periodically derives per-network health from the persisted messages.
// It never writes to the store.
type Monitor struct {
	logger  logging.Logger
	repo    *repository.Repo
	cfg     *config.Config
	clients map[string]ethclient.Client
	now     func() time.Time
}

func NewMonitor(logger logging.Logger, repo *repository.Repo, cfg *config.Config, clients map[string]ethclient.Client) *Monitor {
	return &Monitor{
		logger:  logger.WithField("service", "health"),
		repo:    repo,
		cfg:     cfg,
		clients: clients,
		now:     time.Now,
	}
}

// Run executes health checks every health.interval. A slow check delays the next one.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.WithField("interval", m.cfg.Health.Interval.String()).Info("starting health monitor")
	for {
		start := time.Now()
		results := m.Check(ctx)
		if ctx.Err() != nil {
			m.logger.Info("stopping health monitor")
			return
		}
		if m.cfg.Health.UnprocessedFile != "" {
			if err := WriteReport(m.cfg.Health.UnprocessedFile, results); err != nil {
				m.logger.WithError(err).Error("failed to write unprocessed messages report")
			}
		}
		m.logger.WithFields(logrus.Fields{
			"count":    len(results),
			"duration": time.Since(start),
		}).Info("health check completed")

		if !utils.Sleep(ctx, m.cfg.Health.Interval) {
			m.logger.Info("stopping health monitor")
			return
		}
	}
}

// Check computes and publishes health of every configured network. Networks
// which failed to be checked are logged and left out of the result.
func (m *Monitor) Check(ctx context.Context) []*ChainHealth {
	chains := m.cfg.ChainList()
	results := make([]*ChainHealth, 0, len(chains))
	for _, chain := range chains {
		logger := m.logger.WithFields(logrus.Fields{
			"chain":  chain.Name,
			"domain": chain.Domain,
		})
		tctx, cancel := context.WithTimeout(ctx, m.cfg.Health.Timeout)
		res, err := m.CheckChain(tctx, chain)
		cancel()
		if err != nil {
			logger.WithError(err).Error("failed to check network health, skipping")
			continue
		}
		m.publish(res)
		if res.Unprocessed > 0 && res.Oldest != nil {
			logger.WithFields(logrus.Fields{
				"unprocessed":     res.Unprocessed,
				"oldest_tx_hash":  res.Oldest.OriginTxHash,
				"oldest_block":    res.Oldest.DispatchBlock,
				"oldest_msg_hash": res.Oldest.MessageHash,
			}).Warn("found unprocessed messages")
		}
		if res.HomeFailed {
			logger.Warn("home contract is in the failed state")
		}
		results = append(results, res)
	}
	return results
}

func (m *Monitor) CheckChain(ctx context.Context, chain *config.ChainConfig) (*ChainHealth, error) {
	stats, err := m.repo.Messages.GetStats(ctx, chain.Domain)
	if err != nil {
		return nil, fmt.Errorf("can't get message stats: %w", err)
	}
	msgs, err := m.repo.Messages.FindUnprocessed(ctx, chain.Domain, m.cfg.Health.UnprocessedLimit)
	if err != nil {
		return nil, fmt.Errorf("can't find unprocessed messages: %w", err)
	}
	failed, err := m.homeFailed(ctx, chain)
	if err != nil {
		return nil, err
	}

	res := &ChainHealth{
		Network:     chain.Name,
		Domain:      chain.Domain,
		Stats:       stats,
		Unprocessed: stats.Unprocessed(),
		HomeFailed:  failed,
		Messages:    make([]*UnprocessedMessage, 0, len(msgs)),
	}
	for _, msg := range msgs {
		res.Messages = append(res.Messages, &UnprocessedMessage{
			Network:       chain.Name,
			Origin:        msg.Origin,
			Destination:   msg.Destination,
			OriginTxHash:  msg.OriginTxHash,
			MessageHash:   msg.Hash,
			LeafIndex:     msg.LeafIndex,
			DispatchBlock: msg.DispatchBlock,
			State:         msg.State.String(),
			DispatchedAt:  msg.DispatchedAt,
		})
	}
	if len(res.Messages) > 0 {
		res.Oldest = res.Messages[0]
	}
	// Stats and the unprocessed list are separate reads, messages processed
	// in between are missing from the list. A list shorter than the limit is
	// complete, so it bounds the count.
	if n := uint(len(msgs)); n < m.cfg.Health.UnprocessedLimit && n < res.Unprocessed {
		res.Unprocessed = n
	}
	return res, nil
}

func (m *Monitor) homeFailed(ctx context.Context, chain *config.ChainConfig) (bool, error) {
	client, ok := m.clients[chain.Name]
	if !ok {
		return false, ErrMissingClient
	}
	home := contract.NewHome(client, chain.Home)
	var state contract.State
	err := utils.Retry(ctx, m.cfg.Indexer.Retry, func() error {
		var err error
		state, err = home.State(ctx)
		if err != nil && ethclient.ClassifyError(err) == ethclient.ErrorClassFatal {
			return utils.Permanent(err)
		}
		return err
	}, func(err error, next time.Duration) {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"chain":    chain.Name,
			"retry_in": next.String(),
		}).Warn("failed to get home state, retrying")
	})
	if err != nil {
		return false, fmt.Errorf("can't get home state: %w", err)
	}
	return state == contract.StateFailed, nil
}

func (m *Monitor) publish(res *ChainHealth) {
	l := prometheus.Labels{
		"network":     res.Network,
		"environment": string(m.cfg.Environment),
	}
	DispatchedMessages.With(l).Set(float64(res.Stats.Dispatched))
	UpdatedMessages.With(l).Set(float64(res.Stats.Updated))
	RelayedMessages.With(l).Set(float64(res.Stats.Relayed))
	ProcessedMessages.With(l).Set(float64(res.Stats.Processed))
	UnprocessedMessages.With(l).Set(float64(res.Unprocessed))
	setOptional(MeanUpdateTime.With(l), res.Stats.MeanUpdateTime)
	setOptional(MeanRelayTime.With(l), res.Stats.MeanRelayTime)
	setOptional(MeanProcessTime.With(l), res.Stats.MeanProcessTime)
	setOptional(MeanE2ETime.With(l), res.Stats.MeanE2ETime)
	if res.HomeFailed {
		HomeFailed.With(l).Set(1)
	} else {
		HomeFailed.With(l).Set(0)
	}
	if res.Oldest != nil {
		OldestUnprocessed.With(l).Set(float64(res.Oldest.DispatchBlock))
		age := 0.0
		if res.Oldest.DispatchedAt != nil {
			age = m.now().Sub(*res.Oldest.DispatchedAt).Seconds()
		}
		OldestUnprocessedAge.With(l).Set(age)
	} else {
		OldestUnprocessed.With(l).Set(0)
		OldestUnprocessedAge.With(l).Set(0)
	}
	LastCheck.With(l).Set(float64(m.now().Unix()))
}

func setOptional(g prometheus.Gauge, v *float64) {
	if v == nil {
		g.Set(0)
		return
	}
	g.Set(*v)
}
