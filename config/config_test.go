package config_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/nomad-xyz/nomad-monitor/config"
	"github.com/nomad-xyz/nomad-monitor/utils"
)

const testCfg = `
environment: production
chains:
  ethereum:
    domain: 6648936
    chain_id: 1
    rpc:
      host: https://mainnet.infura.io/v3/${INFURA_PROJECT_KEY}
      timeout: 30s
      rps: 10
    block_time: 15s
    block_index_interval: 60s
    start_block: 13983724
    required_block_confirmations: 12
    max_block_range_size: 2000
    home: 0x92d3404a7E6c91455BbD81475Cd9fAd96ACFF4c8
    bridge_router: 0x88A69B4E698A4B090DF6CF5Bd7B2D47325Ad30A3
    replicas:
      moonbeam:
        address: 0x049b51e531Fd8F90da6d92EA83dC4125002F20EF
  moonbeam:
    domain: 1650811245
    chain_id: 1284
    rpc:
      host: https://rpc.api.moonbeam.network
      timeout: 20s
    block_time: 12s
    block_index_interval: 30s
    safe_logs_request: true
    start_block: 171256
    home: 0x8F184D6Aa1977fd2F9d9024317D0ea5cF5815b6f
    replicas:
      ethereum:
        address: 0x7f58bb8311DB968AB110889F2Dfa04ab7E8E831B
postgres:
  user: test_user
  password: test_password
  host: test_host
  port: 5432
  database: test_db
log_level: info
indexer:
  pass_timeout: 5m
  retry:
    max_attempts: 3
    initial_delay: 1s
    multiplier: 3
health:
  unprocessed_file: /tmp/unprocessed.json
presenter:
  host: 0.0.0.0:3333
`

//nolint:paralleltest
func TestReadConfigWithEnv(t *testing.T) {
	t.Setenv("INFURA_PROJECT_KEY", "12345678")
	cfg, err := config.ReadConfigWithEnv([]byte(testCfg))
	require.NoError(t, err)

	ethereumCfg := &config.ChainConfig{
		Name:    "ethereum",
		Domain:  6648936,
		ChainID: "1",
		RPC: &config.RPCConfig{
			Host:    "https://mainnet.infura.io/v3/12345678",
			Timeout: 30 * time.Second,
			RPS:     10,
		},
		BlockTime:          15 * time.Second,
		BlockIndexInterval: 60 * time.Second,
		StartBlock:         13983724,
		BlockConfirmations: 12,
		MaxBlockRangeSize:  2000,
		Home:               common.HexToAddress("0x92d3404a7E6c91455BbD81475Cd9fAd96ACFF4c8"),
		BridgeRouter:       common.HexToAddress("0x88A69B4E698A4B090DF6CF5Bd7B2D47325Ad30A3"),
	}
	moonbeamCfg := &config.ChainConfig{
		Name:    "moonbeam",
		Domain:  1650811245,
		ChainID: "1284",
		RPC: &config.RPCConfig{
			Host:    "https://rpc.api.moonbeam.network",
			Timeout: 20 * time.Second,
		},
		BlockTime:          12 * time.Second,
		BlockIndexInterval: 30 * time.Second,
		SafeLogsRequest:    true,
		StartBlock:         171256,
		MaxBlockRangeSize:  20000,
		Home:               common.HexToAddress("0x8F184D6Aa1977fd2F9d9024317D0ea5cF5815b6f"),
	}
	ethereumCfg.Replicas = map[string]*config.ReplicaConfig{
		"moonbeam": {
			Address:    common.HexToAddress("0x049b51e531Fd8F90da6d92EA83dC4125002F20EF"),
			RemoteName: "moonbeam",
			Remote:     moonbeamCfg,
		},
	}
	moonbeamCfg.Replicas = map[string]*config.ReplicaConfig{
		"ethereum": {
			Address:    common.HexToAddress("0x7f58bb8311DB968AB110889F2Dfa04ab7E8E831B"),
			RemoteName: "ethereum",
			Remote:     ethereumCfg,
		},
	}

	require.Equal(t, config.EnvironmentProduction, cfg.Environment)
	require.Equal(t, ethereumCfg, cfg.Chains["ethereum"])
	require.Equal(t, moonbeamCfg, cfg.Chains["moonbeam"])
	require.Equal(t, &config.DBConfig{
		User:     "test_user",
		Password: "test_password",
		Host:     "test_host",
		Port:     5432,
		DB:       "test_db",
	}, cfg.DBConfig)
	require.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	require.Equal(t, &config.IndexerConfig{
		PassTimeout:       5 * time.Minute,
		CommitTimeout:     time.Minute,
		MaxPassBlocks:     100000,
		ReconcileInterval: time.Minute,
		ReconcileBatch:    500,
		Retry: utils.RetryPolicy{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			Multiplier:   3,
		},
	}, cfg.Indexer)
	require.Equal(t, &config.HealthConfig{
		Interval:         120 * time.Second,
		Timeout:          time.Minute,
		UnprocessedFile:  "/tmp/unprocessed.json",
		UnprocessedLimit: 100,
	}, cfg.Health)
	require.Equal(t, &config.PresenterConfig{
		Host:  "0.0.0.0:3333",
		RPS:   10,
		Burst: 20,
	}, cfg.Presenter)
	require.Equal(t, ":2112", cfg.Metrics.Host)
}

func TestConfig_ChainList(t *testing.T) {
	t.Parallel()

	cfg, err := config.ReadConfig([]byte(testCfg))
	require.NoError(t, err)

	chains := cfg.ChainList()
	require.Len(t, chains, 2)
	require.Equal(t, "ethereum", chains[0].Name)
	require.Equal(t, "moonbeam", chains[1].Name)
	require.Equal(t, chains[1], cfg.GetChainByDomain(1650811245))
	require.Nil(t, cfg.GetChainByDomain(1000))

	replicas := chains[0].ReplicaList()
	require.Len(t, replicas, 1)
	require.Equal(t, uint32(1650811245), replicas[0].Remote.Domain)
	require.Equal(t, "6648936", chains[0].DomainString())
}

func TestReadConfig_Invalid(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name          string
		Input         string
		ExpectedError error
	}{
		{
			Name: "Unknown environment",
			Input: `
environment: qa
chains:
  ethereum:
    domain: 1
    rpc:
      host: http://localhost:8545
    home: 0x92d3404a7E6c91455BbD81475Cd9fAd96ACFF4c8
`,
			ExpectedError: config.ErrUnknownEnvironment,
		},
		{
			Name: "Missing rpc host",
			Input: `
environment: staging
chains:
  ethereum:
    domain: 1
    home: 0x92d3404a7E6c91455BbD81475Cd9fAd96ACFF4c8
`,
			ExpectedError: config.ErrMissingRPC,
		},
		{
			Name: "Unknown replica chain",
			Input: `
environment: development
chains:
  ethereum:
    domain: 1
    rpc:
      host: http://localhost:8545
    home: 0x92d3404a7E6c91455BbD81475Cd9fAd96ACFF4c8
    replicas:
      polygon:
        address: 0x7f58bb8311DB968AB110889F2Dfa04ab7E8E831B
`,
			ExpectedError: config.ErrUnknownChain,
		},
		{
			Name: "Duplicate domain",
			Input: `
environment: development
chains:
  ethereum:
    domain: 1
    rpc:
      host: http://localhost:8545
    home: 0x92d3404a7E6c91455BbD81475Cd9fAd96ACFF4c8
  goerli:
    domain: 1
    rpc:
      host: http://localhost:8546
    home: 0x92d3404a7E6c91455BbD81475Cd9fAd96ACFF4c8
`,
			ExpectedError: config.ErrDuplicateDomain,
		},
		{
			Name: "No chains",
			Input: `
environment: development
`,
			ExpectedError: config.ErrNoChains,
		},
	} {
		t.Logf("Running sub-test %q", test.Name)
		_, err := config.ReadConfig([]byte(test.Input))
		require.ErrorIs(t, err, test.ExpectedError, "Failed %s", test.Name)
	}
}

func TestReadConfig_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.ReadConfig([]byte("environment: production\nunknown_field: 1\n"))
	require.Error(t, err)
}

//nolint:paralleltest
func TestReadConfigWithEnv_Defaults(t *testing.T) {
	t.Setenv("NOMAD_TEST_ENVIRONMENT", "")
	t.Setenv("NOMAD_TEST_RPC", "https://rpc.example.org")
	blob := `
environment: ${NOMAD_TEST_ENVIRONMENT:-staging}
chains:
  ethereum:
    domain: 6648936
    rpc:
      host: ${NOMAD_TEST_RPC:-https://unused.example.org}
    home: 0x92d3404a7E6c91455BbD81475Cd9fAd96ACFF4c8
`
	cfg, err := config.ReadConfigWithEnv([]byte(blob))
	require.NoError(t, err)
	require.Equal(t, config.EnvironmentStaging, cfg.Environment)
	require.Equal(t, "https://rpc.example.org", cfg.Chains["ethereum"].RPC.Host)
}
