package abi

//nolint:golint
import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

//go:embed home.json
var homeJSONABI string

//go:embed replica.json
var replicaJSONABI string

//go:embed bridge_router.json
var bridgeRouterJSONABI string

var ErrInvalidEvent = errors.New("invalid event")

var (
	HomeABI         = MustReadABI(homeJSONABI)
	ReplicaABI      = MustReadABI(replicaJSONABI)
	BridgeRouterABI = MustReadABI(bridgeRouterJSONABI)
)

const (
	Dispatch = "event Dispatch(bytes32 indexed messageHash, uint256 indexed leafIndex, uint64 indexed destinationAndNonce, bytes32 committedRoot, bytes message)"
	Update   = "event Update(uint32 indexed homeDomain, bytes32 indexed oldRoot, bytes32 indexed newRoot, bytes signature)"
	Process  = "event Process(bytes32 indexed messageHash, bool indexed success, bytes indexed returnData)"
	Receive  = "event Receive(uint64 indexed originAndNonce, address indexed token, address indexed recipient, address liquidityProvider, uint256 amount)"
)

type ABI struct {
	abi.ABI
}

func MustReadABI(rawJSON string) ABI {
	res, err := abi.JSON(strings.NewReader(rawJSON))
	if err != nil {
		panic(err)
	}
	return ABI{res}
}

func (a *ABI) AllEvents() map[string]bool {
	events := make(map[string]bool, len(a.Events))
	for _, event := range a.Events {
		events[event.String()] = true
	}
	return events
}

// EventTopic returns topic0 of the event with the given name.
func (a *ABI) EventTopic(name string) (common.Hash, error) {
	event, ok := a.Events[name]
	if !ok {
		return common.Hash{}, fmt.Errorf("event %q: %w", name, ErrInvalidEvent)
	}
	return event.ID, nil
}

func (a *ABI) FindMatchingEventABI(topics []common.Hash) *abi.Event {
	for _, e := range a.Events {
		if e.ID == topics[0] {
			indexed := Indexed(e.Inputs)
			if len(indexed) == len(topics)-1 {
				event := e
				return &event
			}
		}
	}
	return nil
}

// ParseLog decodes log into the event signature and its named arguments.
// Logs of events unknown to the ABI yield an empty signature and no error.
func (a *ABI) ParseLog(log *types.Log) (string, map[string]interface{}, error) {
	if len(log.Topics) == 0 {
		return "", nil, fmt.Errorf("can't process event without topics: %w", ErrInvalidEvent)
	}
	event := a.FindMatchingEventABI(log.Topics)
	if event == nil {
		return "", nil, nil
	}

	res, err := DecodeEventLog(event, log.Topics, log.Data)
	if err != nil {
		return "", nil, fmt.Errorf("can't decode event log: %w", err)
	}
	return event.String(), res, nil
}

func Indexed(args abi.Arguments) abi.Arguments {
	var indexed abi.Arguments
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func DecodeEventLog(event *abi.Event, topics []common.Hash, data []byte) (map[string]interface{}, error) {
	indexed := Indexed(event.Inputs)
	values := make(map[string]interface{})
	if len(indexed) < len(event.Inputs) {
		if err := event.Inputs.UnpackIntoMap(values, data); err != nil {
			return nil, fmt.Errorf("can't unpack data: %w", err)
		}
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, topics[1:]); err != nil {
		return nil, fmt.Errorf("can't unpack topics: %w", err)
	}
	return values, nil
}
