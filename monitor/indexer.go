package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nomad-xyz/nomad-monitor/config"
	"github.com/nomad-xyz/nomad-monitor/db"
	"github.com/nomad-xyz/nomad-monitor/entity"
	"github.com/nomad-xyz/nomad-monitor/ethclient"
	"github.com/nomad-xyz/nomad-monitor/lifecycle"
	"github.com/nomad-xyz/nomad-monitor/logging"
	"github.com/nomad-xyz/nomad-monitor/repository"
	"github.com/nomad-xyz/nomad-monitor/source"
	"github.com/nomad-xyz/nomad-monitor/utils"
)

const (
	defaultSyncedThreshold     = 10
	defaultHeaderFetchParallel = 8
)

// target is one event kind emitted by one contract of the chain.
type target struct {
	Address common.Address
	Kind    entity.EventKind
}

type ChainIndexer struct {
	cfg        *config.ChainConfig
	indexerCfg *config.IndexerConfig
	logger     logging.Logger
	repo       *repository.Repo
	client     ethclient.Client
	targets    []target
	state      passStateHolder
	synced     atomic.Bool
	known      map[common.Hash]struct{}

	headBlockMetric    prometheus.Gauge
	indexedBlockMetric prometheus.Gauge
	syncedMetric       prometheus.Gauge
	knownMetric        prometheus.Gauge
	commonLabels       prometheus.Labels
}

func NewChainIndexer(logger logging.Logger, repo *repository.Repo, cfg *config.ChainConfig, indexerCfg *config.IndexerConfig, client ethclient.Client) *ChainIndexer {
	targets := []target{
		{cfg.Home, entity.EventKindDispatch},
		{cfg.Home, entity.EventKindUpdate},
	}
	for _, replica := range cfg.ReplicaList() {
		targets = append(targets,
			target{replica.Address, entity.EventKindRelay},
			target{replica.Address, entity.EventKindProcess},
		)
	}
	if cfg.BridgeRouter != (common.Address{}) {
		targets = append(targets, target{cfg.BridgeRouter, entity.EventKindReceive})
	}
	commonLabels := prometheus.Labels{
		"chain":  cfg.Name,
		"domain": cfg.DomainString(),
	}
	return &ChainIndexer{
		cfg:        cfg,
		indexerCfg: indexerCfg,
		logger: logger.WithFields(logrus.Fields{
			"chain":  cfg.Name,
			"domain": cfg.Domain,
		}),
		repo:               repo,
		client:             client,
		targets:            targets,
		known:              make(map[common.Hash]struct{}),
		headBlockMetric:    LatestHeadBlock.With(commonLabels),
		indexedBlockMetric: LatestIndexedBlock.With(commonLabels),
		syncedMetric:       SyncedChain.With(commonLabels),
		knownMetric:        KnownMessages.With(commonLabels),
		commonLabels:       commonLabels,
	}
}

func (ci *ChainIndexer) Name() string {
	return ci.cfg.Name
}

func (ci *ChainIndexer) Domain() uint32 {
	return ci.cfg.Domain
}

func (ci *ChainIndexer) State() PassState {
	return ci.state.Load()
}

// LoadKnownMessages reads hashes of messages already dispatched from the chain,
// their Dispatch events are not decoded again. Without it every Dispatch in
// an indexed range is decoded and merged into the stored row.
func (ci *ChainIndexer) LoadKnownMessages(ctx context.Context) error {
	hashes, err := ci.repo.Messages.ListHashes(ctx, &ci.cfg.Domain)
	if err != nil {
		return fmt.Errorf("can't list known messages: %w", err)
	}
	for _, hash := range hashes {
		ci.known[hash] = struct{}{}
	}
	ci.knownMetric.Set(float64(len(ci.known)))
	ci.logger.WithField("count", len(hashes)).Info("loaded known messages")
	return nil
}

// Run executes indexing passes until ctx is cancelled. A pass never overlaps with
// the next one, the indexer sleeps only once it has caught up with the chain head.
func (ci *ChainIndexer) Run(ctx context.Context) {
	ci.logger.Info("starting chain indexer")
	for {
		err := ci.LoadKnownMessages(ctx)
		if err == nil {
			break
		}
		ci.logger.WithError(err).Error("failed to load known messages, retrying")
		if !utils.Sleep(ctx, ci.cfg.BlockIndexInterval) {
			return
		}
	}

	for {
		caughtUp, err := ci.RunPass(ctx)
		if ctx.Err() != nil {
			ci.logger.Info("stopping chain indexer")
			return
		}
		if err != nil {
			ci.logger.WithError(err).Error("indexing pass failed, cursor is left unchanged")
		}
		if caughtUp || err != nil {
			if !utils.Sleep(ctx, ci.cfg.BlockIndexInterval) {
				ci.logger.Info("stopping chain indexer")
				return
			}
		}
	}
}

// RunPass indexes the next range after the cursor and reports whether the chain head was reached.
func (ci *ChainIndexer) RunPass(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, ci.indexerCfg.PassTimeout)
	defer cancel()
	start := time.Now()

	caughtUp, err := ci.runPass(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		ci.state.Store(PassStateFailed)
	} else {
		ci.state.Store(PassStateIdle)
	}
	PassDuration.MustCurryWith(ci.commonLabels).WithLabelValues(status).Observe(time.Since(start).Seconds())
	return caughtUp, err
}

func (ci *ChainIndexer) runPass(ctx context.Context) (bool, error) {
	cursor, err := ci.cursor(ctx)
	if err != nil {
		return false, err
	}
	ci.indexedBlockMetric.Set(float64(cursor))

	head, err := ci.headBlock(ctx)
	if err != nil {
		return false, err
	}
	ci.recordSynced(cursor, head)
	if cursor >= head {
		return true, nil
	}
	to := head
	if to-cursor > ci.indexerCfg.MaxPassBlocks {
		to = cursor + ci.indexerCfg.MaxPassBlocks
	}
	if err = ci.indexRange(ctx, cursor+1, to, true); err != nil {
		return false, err
	}
	ci.indexedBlockMetric.Set(float64(to))
	ci.recordSynced(to, head)
	return to == head, nil
}

// IndexRange re-indexes [fromBlock, toBlock] without moving the chain cursor.
func (ci *ChainIndexer) IndexRange(ctx context.Context, fromBlock, toBlock uint) error {
	for _, br := range SplitBlockRange(fromBlock, toBlock, ci.indexerCfg.MaxPassBlocks) {
		if err := ci.indexRange(ctx, br.From, br.To, false); err != nil {
			return err
		}
	}
	return nil
}

func (ci *ChainIndexer) cursor(ctx context.Context) (uint, error) {
	cursor, err := ci.repo.KVStorage.GetCursor(ctx, ci.cfg.DomainString())
	if db.IsNotFound(err) {
		ci.logger.WithField("start_block", ci.cfg.StartBlock).Warn("chain cursor is not present, starting indexing from scratch")
		return ci.cfg.StartBlock - 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("can't read chain cursor: %w", err)
	}
	return cursor, nil
}

func (ci *ChainIndexer) headBlock(ctx context.Context) (uint, error) {
	var head uint
	err := ci.retry(ctx, "eth_blockNumber", func() error {
		n, err := ci.client.BlockNumber(ctx)
		if err != nil {
			return classified(err)
		}
		head = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("can't fetch latest block number: %w", err)
	}
	if head < ci.cfg.BlockConfirmations {
		return 0, nil
	}
	head -= ci.cfg.BlockConfirmations
	ci.headBlockMetric.Set(float64(head))
	return head, nil
}

func (ci *ChainIndexer) recordSynced(cursor, head uint) {
	synced := cursor+defaultSyncedThreshold > head
	ci.synced.Store(synced)
	if synced {
		ci.syncedMetric.Set(1)
	} else {
		ci.syncedMetric.Set(0)
	}
}

func (ci *ChainIndexer) IsSynced() bool {
	return ci.synced.Load()
}

func (ci *ChainIndexer) indexRange(ctx context.Context, fromBlock, toBlock uint, moveCursor bool) error {
	logger := ci.logger.WithFields(logrus.Fields{
		"from_block": fromBlock,
		"to_block":   toBlock,
	})

	ci.state.Store(PassStateFetching)
	events, err := ci.fetchEvents(ctx, fromBlock, toBlock)
	if err != nil {
		return err
	}
	timestamps, err := ci.resolveTimestamps(ctx, events)
	if err != nil {
		return err
	}
	logger.WithField("count", len(events)).Info("fetched events in range")

	ci.state.Store(PassStateReconciling)
	set, journal, err := ci.reconcile(ctx, logger, events)
	if err != nil {
		return err
	}

	ci.state.Store(PassStateCommitting)
	msgs := set.changedList()
	err = ci.commit(ctx, func(ctx context.Context) error {
		if err2 := ci.repo.Messages.Upsert(ctx, msgs...); err2 != nil {
			return err2
		}
		if err2 := ci.repo.StageEvents.Ensure(ctx, journal...); err2 != nil {
			return err2
		}
		if err2 := ci.repo.BlockTimestamps.Ensure(ctx, timestamps...); err2 != nil {
			return err2
		}
		if moveCursor {
			return ci.repo.KVStorage.SetCursor(ctx, ci.cfg.DomainString(), toBlock)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't commit indexed range: %w", err)
	}

	for _, msg := range msgs {
		if msg.Origin == ci.cfg.Domain {
			ci.known[msg.Hash] = struct{}{}
		}
	}
	ci.knownMetric.Set(float64(len(ci.known)))
	observeLatency(set.newlyProcessed())
	logger.WithFields(logrus.Fields{
		"messages":     len(msgs),
		"stage_events": len(journal),
	}).Info("committed indexed range")
	return nil
}

// commit runs fn in one transaction on a context detached from ctx cancellation,
// so shutdown doesn't interrupt a started commit.
func (ci *ChainIndexer) commit(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := utils.Detached(ctx, ci.indexerCfg.CommitTimeout)
	defer cancel()
	return ci.repo.RunInTransaction(ctx, fn)
}

func (ci *ChainIndexer) fetchEvents(ctx context.Context, fromBlock, toBlock uint) ([]entity.Event, error) {
	var events []entity.Event
	for _, t := range ci.targets {
		it, err := source.NewIterator(ci.client, source.Query{
			Domain:   ci.cfg.Domain,
			Address:  t.Address,
			Kind:     t.Kind,
			From:     fromBlock,
			To:       toBlock,
			MaxRange: ci.cfg.MaxBlockRangeSize,
			Safe:     ci.cfg.SafeLogsRequest,
		})
		if err != nil {
			return nil, fmt.Errorf("can't create %s events iterator: %w", t.Kind, err)
		}
		count := 0
		err = ci.retry(ctx, "eth_getLogs", func() error {
			for it.Next(ctx) {
				events = append(events, it.Event())
				count++
			}
			if err2 := it.Err(); err2 != nil {
				if errors.Is(err2, source.ErrFatalQuery) {
					return utils.Permanent(err2)
				}
				return err2
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("can't fetch %s events: %w", t.Kind, err)
		}
		IndexedEvents.MustCurryWith(ci.commonLabels).WithLabelValues(string(t.Kind)).Add(float64(count))
	}
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].Meta(), events[j].Meta()
		return a.BlockNumber < b.BlockNumber || (a.BlockNumber == b.BlockNumber && a.LogIndex < b.LogIndex)
	})
	return events, nil
}

// resolveTimestamps fills event timestamps from the stored block timestamps or
// block headers and returns the timestamps which were not stored yet.
func (ci *ChainIndexer) resolveTimestamps(ctx context.Context, events []entity.Event) ([]*entity.BlockTimestamp, error) {
	if len(events) == 0 {
		return nil, nil
	}
	var blocks []uint
	seen := make(map[uint]bool, len(events))
	for _, ev := range events {
		n := ev.Meta().BlockNumber
		if !seen[n] {
			seen[n] = true
			blocks = append(blocks, n)
		}
	}
	stored, err := ci.repo.BlockTimestamps.FindByBlockNumbers(ctx, ci.cfg.Domain, blocks)
	if err != nil {
		return nil, fmt.Errorf("can't get block timestamps from db: %w", err)
	}
	timestamps := entity.TimestampsByBlock(stored)
	var missing []uint
	for _, n := range blocks {
		if _, ok := timestamps[n]; !ok {
			missing = append(missing, n)
		}
	}

	fresh := make([]*entity.BlockTimestamp, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultHeaderFetchParallel)
	for i, n := range missing {
		i, n := i, n
		g.Go(func() error {
			return ci.retry(gctx, "eth_getBlockByNumber", func() error {
				header, err2 := ci.client.HeaderByNumber(gctx, n)
				if err2 != nil {
					return classified(err2)
				}
				fresh[i] = &entity.BlockTimestamp{
					Domain:      ci.cfg.Domain,
					BlockNumber: n,
					Timestamp:   time.Unix(int64(header.Time), 0).UTC(),
				}
				return nil
			})
		})
	}
	if err = g.Wait(); err != nil {
		return nil, fmt.Errorf("can't request block header: %w", err)
	}
	for _, ts := range fresh {
		timestamps[ts.BlockNumber] = ts.Timestamp
	}
	for _, ev := range events {
		meta := ev.Meta()
		meta.Timestamp = timestamps[meta.BlockNumber]
	}
	return fresh, nil
}

func (ci *ChainIndexer) reconcile(ctx context.Context, logger logging.Logger, events []entity.Event) (*messageSet, []*entity.StageEvent, error) {
	set := newMessageSet()
	var stage []entity.Event
	var dispatched []*entity.Message
	skipped := 0
	for _, ev := range events {
		dispatch, ok := ev.(*entity.DispatchEvent)
		if !ok {
			stage = append(stage, ev)
			continue
		}
		// stored dispatch fields are immutable, later stages reach the row
		// through the correlated lookups below
		if _, ok = ci.known[dispatch.MessageHash]; ok {
			skipped++
			continue
		}
		msg, err := lifecycle.FromDispatchEvent(dispatch)
		if err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"tx_hash":   dispatch.TxHash,
				"log_index": dispatch.LogIndex,
			}).Warn("skipping undecodable dispatch event")
			continue
		}
		set.add(msg, true)
		dispatched = append(dispatched, msg)
	}
	if skipped > 0 {
		logger.WithField("count", skipped).Debug("skipped already stored dispatch events")
	}

	if err := set.loadCorrelated(ctx, ci.repo.Messages, stage); err != nil {
		return nil, nil, err
	}
	journal := make([]*entity.StageEvent, 0, len(stage))
	for _, ev := range stage {
		set.apply(ev)
		entry, err := entity.NewStageEvent(ev)
		if err != nil {
			return nil, nil, err
		}
		journal = append(journal, entry)
	}
	if _, err := set.applyJournal(ctx, ci.repo.StageEvents, dispatched); err != nil {
		return nil, nil, err
	}
	return set, journal, nil
}

func (ci *ChainIndexer) retry(ctx context.Context, op string, fn func() error) error {
	return utils.Retry(ctx, ci.indexerCfg.Retry, fn, func(err error, next time.Duration) {
		ci.logger.WithError(err).WithFields(logrus.Fields{
			"operation": op,
			"retry_in":  next.String(),
		}).Warn("transient error, retrying")
	})
}

// classified marks fatal RPC errors as permanent for utils.Retry.
func classified(err error) error {
	if ethclient.ClassifyError(err) == ethclient.ErrorClassFatal {
		return utils.Permanent(err)
	}
	return err
}
