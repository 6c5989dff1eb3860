package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/nomad-xyz/nomad-monitor/config"
	"github.com/nomad-xyz/nomad-monitor/db"
	"github.com/nomad-xyz/nomad-monitor/ethclient"
	"github.com/nomad-xyz/nomad-monitor/logging"
	"github.com/nomad-xyz/nomad-monitor/monitor"
	"github.com/nomad-xyz/nomad-monitor/monitor/health"
	"github.com/nomad-xyz/nomad-monitor/presenter"
	"github.com/nomad-xyz/nomad-monitor/repository"
)

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "config.yml"
}

func main() {
	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(configPath())
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)
	logger = logger.WithField("environment", cfg.Environment)

	dbConn, err := db.ConnectToDBAndMigrate(cfg.DBConfig)
	if err != nil {
		logger.WithError(err).Fatal("can't connect to database and apply migrations")
	}
	defer dbConn.Close()

	clients := make(map[string]ethclient.Client, len(cfg.Chains))
	for _, chain := range cfg.ChainList() {
		client, err2 := ethclient.NewClient(chain.Name, chain.RPC, chain.ChainID)
		if err2 != nil {
			logger.WithError(err2).WithField("chain", chain.Name).Fatal("can't dial rpc client")
		}
		clients[chain.Name] = client
	}

	repo := repository.NewRepo(dbConn)
	m, err := monitor.NewMonitor(logger, repo, cfg, clients)
	if err != nil {
		logger.WithError(err).Fatal("can't initialize nomad monitor")
	}
	healthMonitor := health.NewMonitor(logger, repo, cfg, clients)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsSrv := &http.Server{
		Addr:              cfg.Metrics.Host,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err2 := metricsSrv.ListenAndServe(); err2 != nil && !errors.Is(err2, http.ErrServerClosed) {
			logger.WithError(err2).Fatal("can't start listener for prometheus metrics")
		}
	}()

	services := []func(ctx context.Context) error{
		m.Start,
		func(ctx context.Context) error {
			healthMonitor.Run(ctx)
			return nil
		},
	}
	if cfg.Presenter != nil {
		pr := presenter.NewPresenter(logger, repo, cfg, m)
		services = append(services, func(ctx context.Context) error {
			return pr.Serve(ctx, cfg.Presenter.Host)
		})
	}

	runErr := runServices(ctx, services...)
	if ctx.Err() != nil {
		logger.Warn("caught termination signal, gracefully terminating")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("can't shutdown metrics server")
	}
	if runErr != nil {
		_ = dbConn.Close()
		logger.WithError(runErr).Fatal("service stopped with error")
	}
}

// runServices runs every service until ctx is done or one of them fails,
// a failure stops the rest and is returned.
func runServices(ctx context.Context, services ...func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		svc := svc
		g.Go(func() error {
			return svc(gctx)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
