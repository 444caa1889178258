// floatinbox - A decentralized-messaging inbox reconciliation engine.
// Copyright (C) 2026 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package inbox

import (
	"slices"
	"sync"
)

// Store is the ordered, deduplicated collection of logical messages for one
// conversation. It is created empty on conversation selection, populated by
// backfill, mutated by each live event, and discarded on deselection — never
// persisted.
//
// Display order is arrival order. The store deliberately does not re-sort by
// SentAt: under network reordering the view matches what actually arrived,
// and dedup-by-ID makes overlapping backfill/stream windows harmless.
type Store struct {
	mu       sync.RWMutex
	messages []*Message
	index    map[string]int
}

func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Fold applies one classified event and reports whether the view changed.
// It never fails: reactions and receipts targeting absent messages are
// no-ops, duplicates are discarded, unknown events are dropped.
//
// Folding is idempotent for message events (same ID folds once) and
// watermark-monotonic for read receipts; reaction folds toggle.
func (s *Store) Fold(ev Classified) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case KindReaction:
		return s.foldReaction(ev)
	case KindReadReceipt:
		return s.foldReadReceipt(ev)
	case KindText, KindReply, KindRemoteAttachment:
		return s.foldMessage(ev)
	default:
		return false
	}
}

// foldReaction toggles emoji membership on the target message. Toggling (not
// idempotent adding) is what lets a user retract an emoji by re-sending it.
func (s *Store) foldReaction(ev Classified) bool {
	pos, ok := s.index[ev.Reaction.Reference]
	if !ok {
		// Target not loaded (yet, or ever). Non-fatal.
		return false
	}
	target := s.messages[pos].clone()
	if i := slices.Index(target.Reactions, ev.Reaction.Content); i >= 0 {
		target.Reactions = slices.Delete(target.Reactions, i, i+1)
	} else {
		target.Reactions = append(target.Reactions, ev.Reaction.Content)
	}
	s.messages[pos] = target
	return true
}

// foldReadReceipt marks every message sent at or before the receipt's own
// sent time as read. The flag is monotonic: nothing ever unsets it.
func (s *Store) foldReadReceipt(ev Classified) bool {
	observedAt := ev.Envelope.SentAt
	changed := false
	for pos, msg := range s.messages {
		if msg.IsRead || msg.SentAt.After(observedAt) {
			continue
		}
		next := msg.clone()
		next.IsRead = true
		s.messages[pos] = next
		changed = true
	}
	return changed
}

// foldMessage appends a new logical message, discarding duplicates by ID.
func (s *Store) foldMessage(ev Classified) bool {
	if _, exists := s.index[ev.Envelope.ID]; exists {
		// Duplicate delivery from overlapping backfill/stream windows.
		return false
	}
	msg := &Message{
		ID:       ev.Envelope.ID,
		Sender:   ev.Envelope.Sender,
		SentAt:   ev.Envelope.SentAt,
		Kind:     ev.Kind,
		Text:     ev.Text,
		Fallback: ev.Envelope.Fallback,
	}
	if ev.Reply != nil {
		msg.ReplyTo = ev.Reply.Reference
	}
	if ev.Attachment != nil {
		att := *ev.Attachment
		msg.Attachment = &att
	}
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	return true
}

// Len returns the number of logical messages in the view.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Messages returns a snapshot of the view in display order. The slice is a
// copy; the messages themselves are immutable.
func (s *Store) Messages() []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// Get returns the message with the given ID, if present.
func (s *Store) Get(id string) (*Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.messages[pos], true
}

// Original resolves a reply's referenced message. A dangling reference
// returns nothing — the reply renders without original-message context.
func (s *Store) Original(msg *Message) (*Message, bool) {
	if msg == nil || msg.ReplyTo == "" {
		return nil, false
	}
	return s.Get(msg.ReplyTo)
}

// LastUnread returns the most recent message still marked unread.
func (s *Store) LastUnread() (*Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if !s.messages[i].IsRead {
			return s.messages[i], true
		}
	}
	return nil, false
}
