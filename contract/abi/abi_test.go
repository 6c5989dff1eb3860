package abi_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/nomad-xyz/nomad-monitor/contract/abi"
)

var (
	dispatchTopic = crypto.Keccak256Hash([]byte("Dispatch(bytes32,uint256,uint64,bytes32,bytes)"))
	updateTopic   = crypto.Keccak256Hash([]byte("Update(uint32,bytes32,bytes32,bytes)"))
	processTopic  = crypto.Keccak256Hash([]byte("Process(bytes32,bool,bytes)"))
	receiveTopic  = crypto.Keccak256Hash([]byte("Receive(uint64,address,address,address,uint256)"))

	messageHash = common.HexToHash("0x5c2d6ad0e8b1f3e7b0fd0b4b8a1d2f6c2e4a5b7c9d1e3f5a7b9c1d3e5f7a9b1c")
	oldRoot     = common.HexToHash("0x0a")
	newRoot     = common.HexToHash("0x0b")
	token       = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	recipient   = common.HexToAddress("0x02")
)

func uintTopic(v uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(v))
}

func TestABI_NomadEvents(t *testing.T) {
	t.Parallel()

	require.Equal(t, map[string]bool{abi.Dispatch: true, abi.Update: true}, abi.HomeABI.AllEvents())
	require.Equal(t, map[string]bool{abi.Update: true, abi.Process: true}, abi.ReplicaABI.AllEvents())
	require.Equal(t, map[string]bool{abi.Receive: true}, abi.BridgeRouterABI.AllEvents())

	for _, test := range []struct {
		Name     string
		ABI      abi.ABI
		Event    string
		Expected common.Hash
	}{
		{"home dispatch", abi.HomeABI, "Dispatch", dispatchTopic},
		{"home update", abi.HomeABI, "Update", updateTopic},
		{"replica update", abi.ReplicaABI, "Update", updateTopic},
		{"replica process", abi.ReplicaABI, "Process", processTopic},
		{"bridge router receive", abi.BridgeRouterABI, "Receive", receiveTopic},
	} {
		t.Logf("Running sub-test %q", test.Name)
		topic, err := test.ABI.EventTopic(test.Event)
		require.NoError(t, err, "Failed %s", test.Name)
		require.Equal(t, test.Expected, topic, "Failed %s", test.Name)
	}

	_, err := abi.HomeABI.EventTopic("Process")
	require.ErrorIs(t, err, abi.ErrInvalidEvent)
}

func TestABI_FindMatchingEventABI(t *testing.T) {
	t.Parallel()

	event := abi.ReplicaABI.FindMatchingEventABI([]common.Hash{updateTopic, uintTopic(1000), oldRoot, newRoot})
	require.NotNil(t, event)
	require.Equal(t, "Update", event.Name)

	require.Nil(t, abi.ReplicaABI.FindMatchingEventABI([]common.Hash{updateTopic, uintTopic(1000), oldRoot}))
	require.Nil(t, abi.ReplicaABI.FindMatchingEventABI([]common.Hash{dispatchTopic, messageHash, uintTopic(1), uintTopic(2)}))

	event = abi.HomeABI.FindMatchingEventABI([]common.Hash{dispatchTopic, messageHash, uintTopic(1), uintTopic(2)})
	require.NotNil(t, event)
	require.Equal(t, "Dispatch", event.Name)
}

func TestABI_ParseLog(t *testing.T) {
	t.Parallel()

	t.Run("should parse dispatch with indexed and data fields", func(t *testing.T) {
		t.Parallel()
		message := []byte{0, 0, 3, 232, 1, 2, 3}
		data, err := abi.HomeABI.Events["Dispatch"].Inputs.NonIndexed().Pack(newRoot, message)
		require.NoError(t, err)
		destinationAndNonce := uint64(2000)<<32 | 7
		log := &types.Log{
			Topics: []common.Hash{dispatchTopic, messageHash, uintTopic(41), uintTopic(destinationAndNonce)},
			Data:   data,
		}

		event, values, err := abi.HomeABI.ParseLog(log)
		require.NoError(t, err)
		require.Equal(t, abi.Dispatch, event)
		require.Equal(t, map[string]interface{}{
			"messageHash":         [32]byte(messageHash),
			"leafIndex":           big.NewInt(41),
			"destinationAndNonce": destinationAndNonce,
			"committedRoot":       [32]byte(newRoot),
			"message":             message,
		}, values)
	})

	t.Run("should parse process with only indexed fields", func(t *testing.T) {
		t.Parallel()
		returnData := crypto.Keccak256Hash(nil)
		log := &types.Log{Topics: []common.Hash{processTopic, messageHash, uintTopic(1), returnData}}

		event, values, err := abi.ReplicaABI.ParseLog(log)
		require.NoError(t, err)
		require.Equal(t, abi.Process, event)
		require.Equal(t, [32]byte(messageHash), values["messageHash"])
		require.Equal(t, true, values["success"])
	})

	t.Run("should parse bridge router receive", func(t *testing.T) {
		t.Parallel()
		lp := common.HexToAddress("0x03")
		amount := big.NewInt(1_000_000)
		data, err := abi.BridgeRouterABI.Events["Receive"].Inputs.NonIndexed().Pack(lp, amount)
		require.NoError(t, err)
		originAndNonce := uint64(6648936)<<32 | 12
		log := &types.Log{
			Topics: []common.Hash{receiveTopic, uintTopic(originAndNonce), token.Hash(), recipient.Hash()},
			Data:   data,
		}

		event, values, err := abi.BridgeRouterABI.ParseLog(log)
		require.NoError(t, err)
		require.Equal(t, abi.Receive, event)
		require.Equal(t, map[string]interface{}{
			"originAndNonce":    originAndNonce,
			"token":             token,
			"recipient":         recipient,
			"liquidityProvider": lp,
			"amount":            amount,
		}, values)
	})

	t.Run("should not parse anonymous event", func(t *testing.T) {
		t.Parallel()
		event, values, err := abi.HomeABI.ParseLog(&types.Log{Data: messageHash.Bytes()})
		require.ErrorIs(t, err, abi.ErrInvalidEvent)
		require.Empty(t, event)
		require.Empty(t, values)
	})

	t.Run("should skip event of another contract", func(t *testing.T) {
		t.Parallel()
		log := &types.Log{Topics: []common.Hash{processTopic, messageHash, uintTopic(1), messageHash}}
		event, values, err := abi.HomeABI.ParseLog(log)
		require.NoError(t, err)
		require.Empty(t, event)
		require.Empty(t, values)
	})

	t.Run("should fail on truncated dispatch data", func(t *testing.T) {
		t.Parallel()
		log := &types.Log{
			Topics: []common.Hash{dispatchTopic, messageHash, uintTopic(1), uintTopic(2)},
			Data:   newRoot.Bytes(),
		}
		event, values, err := abi.HomeABI.ParseLog(log)
		require.ErrorContains(t, err, "can't unpack data")
		require.Empty(t, event)
		require.Empty(t, values)
	})
}
