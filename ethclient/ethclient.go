package ethclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/nomad-xyz/nomad-monitor/config"
)

var (
	ErrIncompatibleChainID = errors.New("rpc url returned incompatible chainID")
	ErrNodeIsNotSynced     = errors.New("node is not synced to the requested block")
	ErrInvalidLogsQuery    = errors.New("invalid logs filter query")
)

type Client interface {
	BlockNumber(ctx context.Context) (uint, error)
	HeaderByNumber(ctx context.Context, n uint) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	FilterLogsSafe(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

type rpcClient struct {
	chain     string
	url       string
	timeout   time.Duration
	limiter   *rate.Limiter
	rawClient *rpc.Client
	client    *ethclient.Client
}

func NewClient(chain string, cfg *config.RPCConfig, chainID string) (Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	rawClient, err := rpc.DialContext(ctx, cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("can't dial JSON rpc url: %w", err)
	}
	limit := rate.Inf
	burst := 1
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
		burst = int(math.Ceil(cfg.RPS))
	}
	client := &rpcClient{
		chain:     chain,
		url:       cfg.Host,
		timeout:   cfg.Timeout,
		limiter:   rate.NewLimiter(limit, burst),
		rawClient: rawClient,
		client:    ethclient.NewClient(rawClient),
	}
	if chainID == "" {
		return client, nil
	}
	ctx2, cancel2 := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel2()
	rpcChainID, err := client.client.ChainID(ctx2)
	if err != nil {
		return nil, fmt.Errorf("can't get chainID: %w", err)
	}
	if rpcChainID.String() != chainID {
		return nil, fmt.Errorf("received chainID %s != expected %s: %w", rpcChainID, chainID, ErrIncompatibleChainID)
	}
	return client, nil
}

// prepare blocks until the rate limiter admits a request and applies the request timeout.
func (c *rpcClient) prepare(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limiter: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	return ctx, cancel, nil
}

func (c *rpcClient) BlockNumber(ctx context.Context) (uint, error) {
	defer ObserveDuration(c.chain, c.url, "eth_blockNumber")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	n, err := c.client.BlockNumber(ctx)
	ObserveError(c.chain, c.url, "eth_blockNumber", err)
	return uint(n), err
}

func (c *rpcClient) HeaderByNumber(ctx context.Context, n uint) (*types.Header, error) {
	defer ObserveDuration(c.chain, c.url, "eth_getBlockByNumber")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(uint64(n)))
	ObserveError(c.chain, c.url, "eth_getBlockByNumber", err)
	return header, err
}

func (c *rpcClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	defer ObserveDuration(c.chain, c.url, "eth_getLogs")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	logs, err := c.client.FilterLogs(ctx, q)
	ObserveError(c.chain, c.url, "eth_getLogs", err)
	return logs, err
}

// FilterLogsSafe is the same as FilterLogs, but makes an additional eth_blockNumber
// request to ensure that the node behind RPC is synced to the needed point.
func (c *rpcClient) FilterLogsSafe(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	defer ObserveDuration(c.chain, c.url, "eth_getLogsSafe")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	defer func() {
		ObserveError(c.chain, c.url, "eth_getLogsSafe", err)
	}()

	var arg interface{}
	arg, err = toFilterArg(q)
	if err != nil {
		return nil, fmt.Errorf("can't encode filter argument: %w", err)
	}
	var logs []types.Log
	var blockNumber hexutil.Uint64
	batches := []rpc.BatchElem{
		{
			Method: "eth_getLogs",
			Args:   []interface{}{arg},
			Result: &logs,
		},
		{
			Method: "eth_blockNumber",
			Result: &blockNumber,
		},
	}
	err = c.rawClient.BatchCallContext(ctx, batches)
	if err != nil {
		return nil, fmt.Errorf("can't make batch request: %w", err)
	}
	if err = batches[0].Error; err != nil {
		return nil, fmt.Errorf("can't request logs: %w", err)
	}
	if err = batches[1].Error; err != nil {
		return nil, fmt.Errorf("can't request block number: %w", err)
	}
	if uint64(blockNumber) < q.ToBlock.Uint64() {
		err = fmt.Errorf("current block %d is older than toBlock %s in the query: %w", blockNumber, q.ToBlock, ErrNodeIsNotSynced)
		return nil, err
	}
	return logs, nil
}

func (c *rpcClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	defer ObserveDuration(c.chain, c.url, "eth_call")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	res, err := c.client.CallContract(ctx, msg, nil)
	ObserveError(c.chain, c.url, "eth_call", err)
	return res, err
}

func toFilterArg(q ethereum.FilterQuery) (interface{}, error) {
	arg := map[string]interface{}{
		"address": q.Addresses,
		"topics":  q.Topics,
	}
	if q.BlockHash != nil {
		return nil, ErrInvalidLogsQuery
	}
	if q.FromBlock == nil {
		arg["fromBlock"] = "0x0"
	} else {
		arg["fromBlock"] = hexutil.EncodeBig(q.FromBlock)
	}
	if q.ToBlock == nil || q.ToBlock.Sign() <= 0 {
		return nil, fmt.Errorf("only positive toBlock is supported: %w", ErrInvalidLogsQuery)
	}
	arg["toBlock"] = hexutil.EncodeBig(q.ToBlock)
	return arg, nil
}
