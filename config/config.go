package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/nomad-xyz/nomad-monitor/utils"
)

var (
	ErrUnknownEnvironment = errors.New("unknown environment")
	ErrMissingRPC         = errors.New("rpc host is not specified")
	ErrUnknownChain       = errors.New("unknown chain")
	ErrDuplicateDomain    = errors.New("duplicate chain domain")
	ErrNoChains           = errors.New("no chains configured")
	ErrMissingHome        = errors.New("home address is not specified")
)

type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentStaging     Environment = "staging"
	EnvironmentProduction  Environment = "production"
)

func (e Environment) Validate() error {
	switch e {
	case EnvironmentDevelopment, EnvironmentStaging, EnvironmentProduction:
		return nil
	default:
		return fmt.Errorf("%q: %w", e, ErrUnknownEnvironment)
	}
}

type RPCConfig struct {
	Host    string        `yaml:"host"`
	Timeout time.Duration `yaml:"timeout"`
	RPS     float64       `yaml:"rps"`
}

type ReplicaConfig struct {
	Address    common.Address `yaml:"address"`
	RemoteName string         `yaml:"-"`
	Remote     *ChainConfig   `yaml:"-"`
}

type ChainConfig struct {
	Name               string                    `yaml:"-"`
	Domain             uint32                    `yaml:"domain"`
	ChainID            string                    `yaml:"chain_id"`
	RPC                *RPCConfig                `yaml:"rpc"`
	BlockTime          time.Duration             `yaml:"block_time"`
	BlockIndexInterval time.Duration             `yaml:"block_index_interval"`
	SafeLogsRequest    bool                      `yaml:"safe_logs_request"`
	StartBlock         uint                      `yaml:"start_block"`
	BlockConfirmations uint                      `yaml:"required_block_confirmations"`
	MaxBlockRangeSize  uint                      `yaml:"max_block_range_size"`
	Home               common.Address            `yaml:"home"`
	BridgeRouter       common.Address            `yaml:"bridge_router"`
	Replicas           map[string]*ReplicaConfig `yaml:"replicas"`
}

// ReplicaList returns replicas deployed on the chain ordered by remote chain name.
func (cfg *ChainConfig) ReplicaList() []*ReplicaConfig {
	res := make([]*ReplicaConfig, 0, len(cfg.Replicas))
	for _, replica := range cfg.Replicas {
		res = append(res, replica)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].RemoteName < res[j].RemoteName
	})
	return res
}

func (cfg *ChainConfig) DomainString() string {
	return strconv.FormatUint(uint64(cfg.Domain), 10)
}

type DBConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"database"`
}

type IndexerConfig struct {
	PassTimeout       time.Duration     `yaml:"pass_timeout"`
	CommitTimeout     time.Duration     `yaml:"commit_timeout"`
	MaxPassBlocks     uint              `yaml:"max_pass_blocks"`
	ReconcileInterval time.Duration     `yaml:"reconcile_interval"`
	ReconcileBatch    uint              `yaml:"reconcile_batch_size"`
	Retry             utils.RetryPolicy `yaml:"retry"`
}

type HealthConfig struct {
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	UnprocessedFile  string        `yaml:"unprocessed_file"`
	UnprocessedLimit uint          `yaml:"unprocessed_limit"`
}

type PresenterConfig struct {
	Host  string  `yaml:"host"`
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MetricsConfig struct {
	Host string `yaml:"host"`
}

type Config struct {
	Environment    Environment             `yaml:"environment"`
	Chains         map[string]*ChainConfig `yaml:"chains"`
	DBConfig       *DBConfig               `yaml:"postgres"`
	LogLevel       logrus.Level            `yaml:"log_level"`
	Indexer        *IndexerConfig          `yaml:"indexer"`
	Health         *HealthConfig           `yaml:"health"`
	Presenter      *PresenterConfig        `yaml:"presenter"`
	Metrics        *MetricsConfig          `yaml:"metrics"`
	DisabledChains []string                `yaml:"disabled_chains"`
}

// ChainList returns configured chains ordered by name.
func (cfg *Config) ChainList() []*ChainConfig {
	res := make([]*ChainConfig, 0, len(cfg.Chains))
	for _, chain := range cfg.Chains {
		res = append(res, chain)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Name < res[j].Name
	})
	return res
}

func (cfg *Config) GetChainByDomain(domain uint32) *ChainConfig {
	for _, chain := range cfg.Chains {
		if chain.Domain == domain {
			return chain
		}
	}
	return nil
}

func (cfg *Config) init() error {
	if err := cfg.Environment.Validate(); err != nil {
		return err
	}
	for _, name := range cfg.DisabledChains {
		delete(cfg.Chains, name)
	}
	if len(cfg.Chains) == 0 {
		return ErrNoChains
	}

	domains := make(map[uint32]string, len(cfg.Chains))
	for name, chain := range cfg.Chains {
		chain.Name = name
		if chain.RPC == nil || chain.RPC.Host == "" {
			return fmt.Errorf("chain %s: %w", name, ErrMissingRPC)
		}
		if chain.Home == (common.Address{}) {
			return fmt.Errorf("chain %s: %w", name, ErrMissingHome)
		}
		if other, ok := domains[chain.Domain]; ok {
			return fmt.Errorf("chains %s and %s share domain %d: %w", other, name, chain.Domain, ErrDuplicateDomain)
		}
		domains[chain.Domain] = name
		setChainDefaults(chain)
	}
	for name, chain := range cfg.Chains {
		for remoteName, replica := range chain.Replicas {
			remote, ok := cfg.Chains[remoteName]
			if !ok {
				return fmt.Errorf("replica of %s on chain %s: %w", remoteName, name, ErrUnknownChain)
			}
			replica.RemoteName = remoteName
			replica.Remote = remote
		}
	}

	if cfg.Indexer == nil {
		cfg.Indexer = new(IndexerConfig)
	}
	setIndexerDefaults(cfg.Indexer)
	if cfg.Health == nil {
		cfg.Health = new(HealthConfig)
	}
	setHealthDefaults(cfg.Health)
	if cfg.Presenter != nil {
		setPresenterDefaults(cfg.Presenter)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = new(MetricsConfig)
	}
	if cfg.Metrics.Host == "" {
		cfg.Metrics.Host = ":2112"
	}
	return nil
}

func setChainDefaults(chain *ChainConfig) {
	if chain.RPC.Timeout == 0 {
		chain.RPC.Timeout = 30 * time.Second
	}
	if chain.BlockIndexInterval == 0 {
		chain.BlockIndexInterval = 60 * time.Second
	}
	if chain.MaxBlockRangeSize == 0 {
		chain.MaxBlockRangeSize = 20000
	}
	if chain.StartBlock == 0 {
		chain.StartBlock = 1
	}
}

func setIndexerDefaults(cfg *IndexerConfig) {
	if cfg.PassTimeout == 0 {
		cfg.PassTimeout = 10 * time.Minute
	}
	if cfg.CommitTimeout == 0 {
		cfg.CommitTimeout = time.Minute
	}
	if cfg.MaxPassBlocks == 0 {
		cfg.MaxPassBlocks = 100000
	}
	if cfg.ReconcileInterval == 0 {
		cfg.ReconcileInterval = time.Minute
	}
	if cfg.ReconcileBatch == 0 {
		cfg.ReconcileBatch = 500
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 5
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = 5 * time.Second
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = 2
	}
}

func setHealthDefaults(cfg *HealthConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = 120 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.UnprocessedLimit == 0 {
		cfg.UnprocessedLimit = 100
	}
}

func setPresenterDefaults(cfg *PresenterConfig) {
	if cfg.RPS == 0 {
		cfg.RPS = 10
	}
	if cfg.Burst == 0 {
		cfg.Burst = 20
	}
}

func ReadConfig(blob []byte) (*Config, error) {
	cfg := new(Config)
	if err := parseYaml(cfg, blob); err != nil {
		return nil, err
	}
	if err := cfg.init(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func ReadConfigWithEnv(blob []byte) (*Config, error) {
	return ReadConfig(expandEnv(blob))
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := readEnvYaml(path)
	if err != nil {
		return nil, err
	}
	return ReadConfig(blob)
}
