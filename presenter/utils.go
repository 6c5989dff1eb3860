package presenter

import (
	"github.com/nomad-xyz/nomad-monitor/entity"
)

func (p *Presenter) chainName(domain uint32) string {
	if chain := p.cfg.GetChainByDomain(domain); chain != nil {
		return chain.Name
	}
	return ""
}

func (p *Presenter) messageToInfo(msg *entity.Message) *MessageInfo {
	info := &MessageInfo{
		Hash:            msg.Hash,
		Origin:          msg.Origin,
		OriginChain:     p.chainName(msg.Origin),
		Destination:     msg.Destination,
		DestinationName: p.chainName(msg.Destination),
		Nonce:           msg.Nonce,
		Sender:          msg.Sender,
		Recipient:       msg.Recipient,
		Root:            msg.Root,
		LeafIndex:       msg.LeafIndex,
		Body:            msg.RawBody,
		State:           msg.State.String(),
		DispatchBlock:   msg.DispatchBlock,
		OriginTxHash:    msg.OriginTxHash,
		DispatchedAt:    msg.DispatchedAt,
		UpdatedAt:       msg.UpdatedAt,
		RelayedAt:       msg.RelayedAt,
		ProcessedAt:     msg.ProcessedAt,
		ReceivedAt:      msg.ReceivedAt,
		ProcessSuccess:  msg.ProcessSuccess,
	}
	if msg.BridgeMsgType != nil {
		info.Bridge = &BridgeInfo{
			Type:        *msg.BridgeMsgType,
			Recipient:   msg.BridgeRecipient,
			Amount:      msg.BridgeAmount,
			AllowFast:   msg.BridgeAllowFast,
			DetailsHash: msg.BridgeDetailsHash,
			TokenDomain: msg.BridgeTokenDomain,
			TokenID:     msg.BridgeTokenID,
		}
	}
	return info
}

func (p *Presenter) messagesToInfo(msgs []*entity.Message) []*MessageInfo {
	res := make([]*MessageInfo, 0, len(msgs))
	for _, msg := range msgs {
		res = append(res, p.messageToInfo(msg))
	}
	return res
}
