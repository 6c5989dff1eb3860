package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nomad-xyz/nomad-monitor/config"
	"github.com/nomad-xyz/nomad-monitor/logging"
	"github.com/nomad-xyz/nomad-monitor/repository"
	"github.com/nomad-xyz/nomad-monitor/utils"
)

// Reconciler periodically applies journaled stage events to incomplete messages.
// It covers stage events committed by one chain before the Dispatch of their
// message was committed by another chain.
type Reconciler struct {
	logger logging.Logger
	repo   *repository.Repo
	cfg    *config.IndexerConfig
}

func NewReconciler(logger logging.Logger, repo *repository.Repo, cfg *config.IndexerConfig) *Reconciler {
	return &Reconciler{
		logger: logger.WithField("service", "reconciler"),
		repo:   repo,
		cfg:    cfg,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("starting reconcile sweep")
	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.WithError(err).Error("reconcile sweep failed")
		}
		if !utils.Sleep(ctx, r.cfg.ReconcileInterval) {
			r.logger.Info("stopping reconcile sweep")
			return
		}
	}
}

// Sweep makes one pass over all incomplete messages and returns the number of advanced messages.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	var afterID uint
	total := 0
	for {
		msgs, err := r.repo.Messages.FindIncomplete(ctx, afterID, r.cfg.ReconcileBatch)
		if err != nil {
			return total, fmt.Errorf("can't find incomplete messages: %w", err)
		}
		if len(msgs) == 0 {
			break
		}
		afterID = msgs[len(msgs)-1].ID

		set := newMessageSet()
		for _, msg := range msgs {
			set.add(msg, false)
		}
		if _, err = set.applyJournal(ctx, r.repo.StageEvents, msgs); err != nil {
			return total, err
		}
		changed := set.changedList()
		if len(changed) > 0 {
			if err = r.repo.Messages.Upsert(ctx, changed...); err != nil {
				return total, fmt.Errorf("can't save reconciled messages: %w", err)
			}
			ReconciledMessages.Add(float64(len(changed)))
			observeLatency(set.newlyProcessed())
			total += len(changed)
		}
		if uint(len(msgs)) < r.cfg.ReconcileBatch {
			break
		}
	}
	r.logger.WithFields(logrus.Fields{
		"count":    total,
		"duration": time.Since(start),
	}).Debug("reconcile sweep completed")
	return total, nil
}
