package presenter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nomad-xyz/nomad-monitor/config"
	"github.com/nomad-xyz/nomad-monitor/db"
	"github.com/nomad-xyz/nomad-monitor/logging"
	"github.com/nomad-xyz/nomad-monitor/monitor"
	"github.com/nomad-xyz/nomad-monitor/presenter/http/middleware"
	"github.com/nomad-xyz/nomad-monitor/presenter/http/render"
	"github.com/nomad-xyz/nomad-monitor/repository"
)

const (
	defaultThrottle        = 50
	defaultShutdownTimeout = 10 * time.Second
)

// SyncStatus exposes progress of the running chain indexers.
type SyncStatus interface {
	IsSynced() bool
	Indexers() []*monitor.ChainIndexer
}

// Presenter serves read-only message queries over HTTP.
type Presenter struct {
	logger logging.Logger
	repo   *repository.Repo
	cfg    *config.Config
	status SyncStatus
	root   chi.Router
}

// NewPresenter builds the router, /status is served only when status is not nil.
func NewPresenter(logger logging.Logger, repo *repository.Repo, cfg *config.Config, status SyncStatus) *Presenter {
	p := &Presenter{
		logger: logger.WithField("service", "presenter"),
		repo:   repo,
		cfg:    cfg,
		status: status,
		root:   chi.NewMux(),
	}
	p.routes()
	return p
}

func (p *Presenter) routes() {
	limiter := middleware.NewRateLimiter(p.cfg.Presenter.RPS, p.cfg.Presenter.Burst)
	p.root.Use(chimiddleware.Throttle(defaultThrottle))
	p.root.Use(chimiddleware.RequestID)
	p.root.Use(middleware.NewLoggerMiddleware(p.logger))
	p.root.Use(middleware.Recoverer)
	p.root.Use(limiter.Handler)

	p.root.Get("/healthcheck", p.Healthcheck)
	if p.status != nil {
		p.root.Get("/status", p.Status)
	}
	p.root.With(middleware.GetTxHashMiddleware).Get("/tx/{tx}", p.GetMessagesByTx)
	p.root.With(middleware.GetMessageHashMiddleware).Get("/hash/{hash}", p.GetMessageByHash)
	p.root.With(middleware.GetFilterMiddleware).Get("/tx", p.FindMessages)
	p.root.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.Error(w, r, fmt.Errorf("route %s: %w", r.URL.Path, db.ErrNotFound))
	})
}

func (p *Presenter) Handler() http.Handler {
	return p.root
}

// Serve listens on addr until ctx is cancelled.
func (p *Presenter) Serve(ctx context.Context, addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	srv := &http.Server{
		Addr:              addr,
		Handler:           p.root,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return logging.WithLogger(context.Background(), p.logger)
		},
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("presenter server failed: %w", err)
	case <-ctx.Done():
	}
	p.logger.Info("stopping presenter service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("can't shutdown presenter server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (p *Presenter) Healthcheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("OK!"))
}

// Status reports indexing progress per chain, 503 until every chain is synced.
func (p *Presenter) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	indexers := p.status.Indexers()
	res := &StatusInfo{
		Synced: p.status.IsSynced(),
		Chains: make([]*ChainStatus, 0, len(indexers)),
	}
	for _, indexer := range indexers {
		chain := &ChainStatus{
			Chain:  indexer.Name(),
			Domain: indexer.Domain(),
			State:  indexer.State().String(),
			Synced: indexer.IsSynced(),
		}
		cursor, err := p.repo.KVStorage.GetCursor(ctx, strconv.FormatUint(uint64(chain.Domain), 10))
		if err != nil && !db.IsNotFound(err) {
			render.Error(w, r, fmt.Errorf("can't get cursor of chain %s: %w", chain.Chain, err))
			return
		}
		if err == nil {
			chain.LastIndexedBlock = &cursor
		}
		res.Chains = append(res.Chains, chain)
	}
	status := http.StatusOK
	if !res.Synced {
		status = http.StatusServiceUnavailable
	}
	render.JSON(w, r, status, res)
}

func (p *Presenter) GetMessagesByTx(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txHash := middleware.TxHash(ctx)

	msgs, err := p.repo.Messages.FindByOriginTxHash(ctx, txHash)
	if err != nil {
		render.Error(w, r, fmt.Errorf("can't find messages by tx hash: %w", err))
		return
	}
	if len(msgs) == 0 {
		render.Error(w, r, fmt.Errorf("no messages dispatched in tx %s: %w", txHash, db.ErrNotFound))
		return
	}
	render.JSON(w, r, http.StatusOK, p.messagesToInfo(msgs))
}

func (p *Presenter) GetMessageByHash(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hash := middleware.MessageHash(ctx)

	msg, err := p.repo.Messages.GetByHash(ctx, hash)
	if err != nil {
		render.Error(w, r, fmt.Errorf("can't get message %s: %w", hash, err))
		return
	}
	render.JSON(w, r, http.StatusOK, p.messageToInfo(msg))
}

func (p *Presenter) FindMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := middleware.GetFilterContext(ctx)

	msgs, err := p.repo.Messages.Find(ctx, filter)
	if err != nil {
		render.Error(w, r, fmt.Errorf("can't find messages: %w", err))
		return
	}
	render.JSON(w, r, http.StatusOK, &MessagesPage{
		Page:     filter.Page,
		Size:     filter.Size,
		Messages: p.messagesToInfo(msgs),
	})
}
