package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nomad-xyz/nomad-monitor/config"
	"github.com/nomad-xyz/nomad-monitor/db"
	"github.com/nomad-xyz/nomad-monitor/ethclient"
	"github.com/nomad-xyz/nomad-monitor/logging"
	"github.com/nomad-xyz/nomad-monitor/monitor"
	"github.com/nomad-xyz/nomad-monitor/repository"
)

var (
	configPath string
	chainName  string
	fromBlock  uint
	toBlock    uint
)

var rootCmd = &cobra.Command{
	Use:   "reprocess_block_range",
	Short: "Re-index events of one chain in the given block range",
	Long: `Fetches every indexed event kind of the chain in [from-block, to-block],
reconciles them with the stored messages and commits the result.
The chain cursor is left unchanged.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

func init() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "config.yml"
	}
	rootCmd.Flags().StringVar(&configPath, "config", defaultPath, "path to the config file")
	rootCmd.Flags().StringVar(&chainName, "chain", "", "name of the chain to reprocess")
	rootCmd.Flags().UintVar(&fromBlock, "from-block", 0, "starting block, defaults to the chain start block")
	rootCmd.Flags().UintVar(&toBlock, "to-block", 0, "ending block")
	_ = rootCmd.MarkFlagRequired("chain")
	_ = rootCmd.MarkFlagRequired("to-block")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(configPath)
	if err != nil {
		return fmt.Errorf("can't read config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	chainCfg, ok := cfg.Chains[chainName]
	if !ok {
		return fmt.Errorf("chain %q: %w", chainName, config.ErrUnknownChain)
	}
	if fromBlock < chainCfg.StartBlock {
		fromBlock = chainCfg.StartBlock
	}
	if toBlock < fromBlock {
		return fmt.Errorf("to-block %d is less than from-block %d", toBlock, fromBlock)
	}
	logger = logger.WithFields(logrus.Fields{
		"chain":      chainName,
		"from_block": fromBlock,
		"to_block":   toBlock,
	})

	dbConn, err := db.ConnectToDBAndMigrate(cfg.DBConfig)
	if err != nil {
		return fmt.Errorf("can't connect to database and apply migrations: %w", err)
	}
	defer dbConn.Close()

	client, err := ethclient.NewClient(chainCfg.Name, chainCfg.RPC, chainCfg.ChainID)
	if err != nil {
		return fmt.Errorf("can't dial rpc client: %w", err)
	}
	repo := repository.NewRepo(dbConn)
	indexer := monitor.NewChainIndexer(logger, repo, chainCfg, cfg.Indexer, client)
	logger.Info("reprocessing block range")
	if err = indexer.IndexRange(ctx, fromBlock, toBlock); err != nil {
		logger.WithError(err).Error("can't reprocess block range")
		return err
	}
	logger.Info("block range reprocessed")
	return nil
}
