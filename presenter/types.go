package presenter

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type BridgeInfo struct {
	Type        string       `json:"type"`
	Recipient   *common.Hash `json:"recipient,omitempty"`
	Amount      *string      `json:"amount,omitempty"`
	AllowFast   *bool        `json:"allow_fast,omitempty"`
	DetailsHash *common.Hash `json:"details_hash,omitempty"`
	TokenDomain *uint32      `json:"token_domain,omitempty"`
	TokenID     *common.Hash `json:"token_id,omitempty"`
}

type MessageInfo struct {
	Hash            common.Hash   `json:"hash"`
	Origin          uint32        `json:"origin"`
	OriginChain     string        `json:"origin_chain,omitempty"`
	Destination     uint32        `json:"destination"`
	DestinationName string        `json:"destination_chain,omitempty"`
	Nonce           uint32        `json:"nonce"`
	Sender          *common.Hash  `json:"sender,omitempty"`
	Recipient       *common.Hash  `json:"recipient,omitempty"`
	Root            common.Hash   `json:"root"`
	LeafIndex       uint64        `json:"leaf_index"`
	Body            hexutil.Bytes `json:"body"`
	State           string        `json:"state"`
	DispatchBlock   uint          `json:"dispatch_block"`
	OriginTxHash    common.Hash   `json:"origin_tx_hash"`
	DispatchedAt    *time.Time    `json:"dispatched_at,omitempty"`
	UpdatedAt       *time.Time    `json:"updated_at,omitempty"`
	RelayedAt       *time.Time    `json:"relayed_at,omitempty"`
	ProcessedAt     *time.Time    `json:"processed_at,omitempty"`
	ReceivedAt      *time.Time    `json:"received_at,omitempty"`
	ProcessSuccess  *bool         `json:"process_success,omitempty"`
	Bridge          *BridgeInfo   `json:"bridge,omitempty"`
}

type MessagesPage struct {
	Page     uint           `json:"page"`
	Size     uint           `json:"size"`
	Messages []*MessageInfo `json:"messages"`
}

type ChainStatus struct {
	Chain            string `json:"chain"`
	Domain           uint32 `json:"domain"`
	State            string `json:"state"`
	Synced           bool   `json:"synced"`
	LastIndexedBlock *uint  `json:"last_indexed_block,omitempty"`
}

type StatusInfo struct {
	Synced bool           `json:"synced"`
	Chains []*ChainStatus `json:"chains"`
}
