package entity_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/nomad-xyz/nomad-monitor/entity"
)

func TestParseMessageState(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Input         string
		Expected      entity.MessageState
		ExpectedError bool
	}{
		{"dispatched", entity.MessageStateDispatched, false},
		{"Included", entity.MessageStateIncluded, false},
		{" relayed ", entity.MessageStateRelayed, false},
		{"3", entity.MessageStateProcessed, false},
		{"4", 0, true},
		{"failed", 0, true},
	} {
		state, err := entity.ParseMessageState(test.Input)
		if test.ExpectedError {
			require.ErrorIs(t, err, entity.ErrUnknownState, test.Input)
			continue
		}
		require.NoError(t, err, test.Input)
		require.Equal(t, test.Expected, state, test.Input)
	}
	require.Equal(t, "processed", entity.MessageStateProcessed.String())
	require.Equal(t, "unknown", entity.MessageState(7).String())
}

func TestMessagesFilter_Normalize(t *testing.T) {
	t.Parallel()

	f := &entity.MessagesFilter{}
	require.NoError(t, f.Normalize())
	require.Equal(t, uint(entity.DefaultPageSize), f.Size)
	require.Equal(t, uint(1), f.Page)
	require.Equal(t, uint(0), f.Offset())

	f = &entity.MessagesFilter{Page: 3, Size: 30}
	require.NoError(t, f.Normalize())
	require.Equal(t, uint(60), f.Offset())

	f = &entity.MessagesFilter{Size: 31}
	require.ErrorIs(t, f.Normalize(), entity.ErrPageSizeTooLarge)
}

func TestMessage_IsComplete(t *testing.T) {
	t.Parallel()

	now := time.Now()
	transfer := entity.BridgeMsgTypeTransfer
	msg := &entity.Message{State: entity.MessageStateRelayed}
	require.False(t, msg.IsComplete())

	msg.State = entity.MessageStateProcessed
	require.True(t, msg.IsComplete())

	msg.BridgeMsgType = &transfer
	require.True(t, msg.IsTransfer())
	require.False(t, msg.IsComplete())

	msg.ReceivedAt = &now
	require.True(t, msg.IsComplete())
}

func TestStageEvent_Event(t *testing.T) {
	t.Parallel()

	meta := entity.EventMeta{
		Domain:      1000,
		BlockNumber: 150,
		LogIndex:    3,
		TxHash:      common.HexToHash("0x01"),
		Timestamp:   time.Unix(1650000000, 0).UTC(),
	}
	for _, ev := range []entity.Event{
		&entity.UpdateEvent{EventMeta: meta, HomeDomain: 2000, OldRoot: common.HexToHash("0x02"), NewRoot: common.HexToHash("0x03")},
		&entity.RelayEvent{EventMeta: meta, HomeDomain: 2000, OldRoot: common.HexToHash("0x02"), NewRoot: common.HexToHash("0x03")},
		&entity.ProcessEvent{EventMeta: meta, MessageHash: common.HexToHash("0x04"), Success: true},
		&entity.ReceiveEvent{EventMeta: meta, Origin: 2000, Nonce: 7},
	} {
		row, err := entity.NewStageEvent(ev)
		require.NoError(t, err)
		require.Equal(t, ev.Kind(), row.Kind)
		restored, err := row.Event()
		require.NoError(t, err)
		require.Equal(t, ev, restored)
	}

	_, err := entity.NewStageEvent(&entity.DispatchEvent{EventMeta: meta})
	require.ErrorIs(t, err, entity.ErrUnsupportedEventKind)
}
