package contract

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/nomad-xyz/nomad-monitor/contract/abi"
	"github.com/nomad-xyz/nomad-monitor/ethclient"
)

var ErrUnexpectedOutput = errors.New("unexpected call output")

// State mirrors the NomadBase.States enum.
type State uint8

const (
	StateUninitialized State = iota
	StateActive
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

type Contract struct {
	address common.Address
	client  ethclient.Client
	abi     abi.ABI
}

func NewContract(client ethclient.Client, addr common.Address, abi abi.ABI) *Contract {
	return &Contract{addr, client, abi}
}

func NewHome(client ethclient.Client, addr common.Address) *Contract {
	return NewContract(client, addr, abi.HomeABI)
}

func NewReplica(client ethclient.Client, addr common.Address) *Contract {
	return NewContract(client, addr, abi.ReplicaABI)
}

func NewBridgeRouter(client ethclient.Client, addr common.Address) *Contract {
	return NewContract(client, addr, abi.BridgeRouterABI)
}

func (c *Contract) Address() common.Address {
	return c.address
}

func (c *Contract) ABI() *abi.ABI {
	return &c.abi
}

func (c *Contract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot encode abi calldata: %w", err)
	}
	res, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &c.address,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot call %s(...): %w", method, err)
	}
	values, err := c.abi.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("cannot decode %s(...) output: %w", method, err)
	}
	return values, nil
}

// State calls state() of a Home or Replica contract.
func (c *Contract) State(ctx context.Context) (State, error) {
	values, err := c.Call(ctx, "state")
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("state() returned %d values: %w", len(values), ErrUnexpectedOutput)
	}
	state, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("state() returned %T: %w", values[0], ErrUnexpectedOutput)
	}
	return State(state), nil
}
