package monitor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nomad-xyz/nomad-monitor/config"
	"github.com/nomad-xyz/nomad-monitor/ethclient"
	"github.com/nomad-xyz/nomad-monitor/logging"
	"github.com/nomad-xyz/nomad-monitor/repository"
)

// Monitor runs one ChainIndexer per configured chain and the reconcile sweep.
type Monitor struct {
	cfg        *config.Config
	logger     logging.Logger
	repo       *repository.Repo
	indexers   []*ChainIndexer
	reconciler *Reconciler
}

func NewMonitor(logger logging.Logger, repo *repository.Repo, cfg *config.Config, clients map[string]ethclient.Client) (*Monitor, error) {
	logger.Info("initializing nomad monitor")
	chains := cfg.ChainList()
	indexers := make([]*ChainIndexer, 0, len(chains))
	for _, chain := range chains {
		client, ok := clients[chain.Name]
		if !ok {
			return nil, fmt.Errorf("rpc client for chain %s is missing", chain.Name)
		}
		indexers = append(indexers, NewChainIndexer(logger, repo, chain, cfg.Indexer, client))
	}
	return &Monitor{
		cfg:        cfg,
		logger:     logger,
		repo:       repo,
		indexers:   indexers,
		reconciler: NewReconciler(logger, repo, cfg.Indexer),
	}, nil
}

// Indexer returns the indexer of the named chain or nil.
func (m *Monitor) Indexer(name string) *ChainIndexer {
	for _, indexer := range m.indexers {
		if indexer.Name() == name {
			return indexer
		}
	}
	return nil
}

func (m *Monitor) Indexers() []*ChainIndexer {
	return m.indexers
}

// Start blocks until ctx is cancelled and every indexer has finished its pass.
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info("starting nomad monitor")
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(m.indexers) + 1)
	for _, indexer := range m.indexers {
		indexer := indexer
		g.Go(func() error {
			indexer.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		m.reconciler.Run(gctx)
		return nil
	})
	err := g.Wait()
	m.logger.Info("nomad monitor stopped")
	return err
}

// IsSynced reports whether every chain indexer is close to its chain head.
func (m *Monitor) IsSynced() bool {
	for _, indexer := range m.indexers {
		if !indexer.IsSynced() {
			return false
		}
	}
	return true
}
