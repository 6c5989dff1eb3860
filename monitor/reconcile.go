package monitor

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nomad-xyz/nomad-monitor/entity"
	"github.com/nomad-xyz/nomad-monitor/lifecycle"
)

type rootKey struct {
	origin uint32
	root   common.Hash
}

type nonceKey struct {
	origin uint32
	nonce  uint32
}

// messageSet holds the messages touched by one pass or sweep, indexed by the
// fields stage events are correlated on.
type messageSet struct {
	msgs    map[common.Hash]*entity.Message
	order   []common.Hash
	initial map[common.Hash]entity.MessageState
	changed map[common.Hash]bool
	byRoot  map[rootKey][]common.Hash
	byNonce map[nonceKey][]common.Hash
}

func newMessageSet() *messageSet {
	return &messageSet{
		msgs:    make(map[common.Hash]*entity.Message),
		initial: make(map[common.Hash]entity.MessageState),
		changed: make(map[common.Hash]bool),
		byRoot:  make(map[rootKey][]common.Hash),
		byNonce: make(map[nonceKey][]common.Hash),
	}
}

// add puts msg into the set, merging it with an already present copy.
// Stored messages are added with dirty set to false.
func (s *messageSet) add(msg *entity.Message, dirty bool) {
	existing, ok := s.msgs[msg.Hash]
	if !ok {
		s.msgs[msg.Hash] = msg
		s.order = append(s.order, msg.Hash)
		s.initial[msg.Hash] = msg.State
		s.changed[msg.Hash] = dirty
		rk := rootKey{msg.Origin, msg.Root}
		s.byRoot[rk] = append(s.byRoot[rk], msg.Hash)
		nk := nonceKey{msg.Origin, msg.Nonce}
		s.byNonce[nk] = append(s.byNonce[nk], msg.Hash)
		return
	}
	if dirty {
		s.msgs[msg.Hash] = lifecycle.Merge(existing, msg)
		s.changed[msg.Hash] = true
		return
	}
	// the stored copy keeps its set-once fields, in-pass progress is kept on top of it
	s.msgs[msg.Hash] = lifecycle.Merge(msg, existing)
	if msg.State > s.initial[msg.Hash] {
		s.initial[msg.Hash] = msg.State
	}
}

func (s *messageSet) candidates(ev entity.Event) []common.Hash {
	switch e := ev.(type) {
	case *entity.UpdateEvent:
		return s.byRoot[rootKey{e.HomeDomain, e.OldRoot}]
	case *entity.RelayEvent:
		return s.byRoot[rootKey{e.HomeDomain, e.OldRoot}]
	case *entity.ProcessEvent:
		if _, ok := s.msgs[e.MessageHash]; ok {
			return []common.Hash{e.MessageHash}
		}
	case *entity.ReceiveEvent:
		return s.byNonce[nonceKey{e.Origin, e.Nonce}]
	}
	return nil
}

// apply advances every message of the set matching ev and returns the number of changed messages.
func (s *messageSet) apply(ev entity.Event) int {
	n := 0
	for _, hash := range s.candidates(ev) {
		msg, ok := lifecycle.Apply(s.msgs[hash], ev)
		if ok {
			s.msgs[hash] = msg
			s.changed[hash] = true
			n++
		}
	}
	return n
}

func (s *messageSet) changedList() []*entity.Message {
	res := make([]*entity.Message, 0, len(s.order))
	for _, hash := range s.order {
		if s.changed[hash] {
			res = append(res, s.msgs[hash])
		}
	}
	return res
}

// newlyProcessed returns changed messages which reached the Processed state within the set.
func (s *messageSet) newlyProcessed() []*entity.Message {
	var res []*entity.Message
	for _, hash := range s.order {
		msg := s.msgs[hash]
		if s.changed[hash] && msg.State == entity.MessageStateProcessed && s.initial[hash] < entity.MessageStateProcessed {
			res = append(res, msg)
		}
	}
	return res
}

// loadCorrelated adds stored messages which may be advanced by events.
func (s *messageSet) loadCorrelated(ctx context.Context, repo entity.MessagesRepo, events []entity.Event) error {
	var hashes []common.Hash
	roots := make(map[uint32][]common.Hash)
	nonces := make(map[uint32][]uint32)
	for _, ev := range events {
		switch e := ev.(type) {
		case *entity.UpdateEvent:
			roots[e.HomeDomain] = append(roots[e.HomeDomain], e.OldRoot)
		case *entity.RelayEvent:
			roots[e.HomeDomain] = append(roots[e.HomeDomain], e.OldRoot)
		case *entity.ProcessEvent:
			hashes = append(hashes, e.MessageHash)
		case *entity.ReceiveEvent:
			nonces[e.Origin] = append(nonces[e.Origin], e.Nonce)
		}
	}
	var loaded []*entity.Message
	msgs, err := repo.FindByHashes(ctx, hashes)
	if err != nil {
		return fmt.Errorf("can't load processed messages: %w", err)
	}
	loaded = append(loaded, msgs...)
	for origin, originRoots := range roots {
		msgs, err = repo.FindByOriginAndRoots(ctx, origin, originRoots)
		if err != nil {
			return fmt.Errorf("can't load messages by roots: %w", err)
		}
		loaded = append(loaded, msgs...)
	}
	for origin, originNonces := range nonces {
		msgs, err = repo.FindByOriginAndNonces(ctx, origin, originNonces)
		if err != nil {
			return fmt.Errorf("can't load messages by nonces: %w", err)
		}
		loaded = append(loaded, msgs...)
	}
	for _, msg := range loaded {
		s.add(msg, false)
	}
	return nil
}

// applyJournal applies stored stage events to msgs.
func (s *messageSet) applyJournal(ctx context.Context, repo entity.StageEventsRepo, msgs []*entity.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	journal, err := repo.FindForMessages(ctx, msgs)
	if err != nil {
		return 0, fmt.Errorf("can't load stage events: %w", err)
	}
	n := 0
	for _, entry := range journal {
		ev, err := entry.Event()
		if err != nil {
			return 0, fmt.Errorf("can't restore stage event %d: %w", entry.ID, err)
		}
		n += s.apply(ev)
	}
	return n, nil
}

func observeLatency(msgs []*entity.Message) {
	for _, msg := range msgs {
		if msg.DispatchedAt == nil || msg.ProcessedAt == nil {
			continue
		}
		origin := strconv.FormatUint(uint64(msg.Origin), 10)
		destination := strconv.FormatUint(uint64(msg.Destination), 10)
		prev := *msg.DispatchedAt
		if msg.UpdatedAt != nil {
			MessageLatency.WithLabelValues(origin, destination, "update").Observe(msg.UpdatedAt.Sub(prev).Seconds())
			prev = *msg.UpdatedAt
		}
		if msg.RelayedAt != nil {
			MessageLatency.WithLabelValues(origin, destination, "relay").Observe(msg.RelayedAt.Sub(prev).Seconds())
			prev = *msg.RelayedAt
		}
		MessageLatency.WithLabelValues(origin, destination, "process").Observe(msg.ProcessedAt.Sub(prev).Seconds())
		MessageLatency.WithLabelValues(origin, destination, "e2e").Observe(msg.ProcessedAt.Sub(*msg.DispatchedAt).Seconds())
	}
}
