// floatinbox - A decentralized-messaging inbox reconciliation engine.
// Copyright (C) 2026 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package inbox

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lrhodin/floatinbox/pkg/courier"
)

// ReceiptEmitter sends outbound read receipts, debounced on the unread tail:
// one receipt per newly-observed unread boundary, never one per message.
// Hook Observe up as a session change listener.
type ReceiptEmitter struct {
	conv courier.Conversation
	log  zerolog.Logger

	mu          sync.Mutex
	lastEmitted string
}

func NewReceiptEmitter(conv courier.Conversation) *ReceiptEmitter {
	return &ReceiptEmitter{
		conv: conv,
		log:  log.With().Str("component", "receipt_emitter").Logger(),
	}
}

// Observe inspects the view after a store mutation and emits a read receipt
// if the most recent unread message differs from the last one receipted.
// The watermark only advances on a successful send, so a failed emission is
// retried on the next change.
func (e *ReceiptEmitter) Observe(ctx context.Context, store *Store) {
	last, ok := store.LastUnread()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if last.ID == e.lastEmitted {
		return
	}
	err := e.conv.Send(ctx, nil, courier.SendOptions{ContentType: courier.ContentTypeReadReceipt})
	if err != nil {
		e.log.Warn().Err(err).Msg("Failed to send read receipt")
		return
	}
	e.lastEmitted = last.ID
}
