// floatinbox - A decentralized-messaging inbox reconciliation engine.
// Copyright (C) 2026 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package inbox reconciles a conversation's raw event stream — backfill plus
// live subscription — into one deduplicated, chronologically stable view.
// Reactions and read receipts are folded into the messages they target; text,
// replies and remote attachments become messages of their own.
package inbox

import (
	"slices"
	"time"

	"github.com/lrhodin/floatinbox/pkg/courier"
)

// Message is one logical message in the reconciled view. Values handed out by
// the store are never mutated afterwards: every fold that changes a message
// replaces it with a fresh copy, so renderers can hold references safely.
type Message struct {
	ID     string
	Sender string
	SentAt time.Time
	Kind   ContentKind

	// Text carries the body for KindText and KindReply.
	Text string

	// ReplyTo is the referenced message ID for KindReply. It is a lookup
	// key only; the target may be absent from the view.
	ReplyTo string

	// Attachment is set for KindRemoteAttachment.
	Attachment *courier.RemoteAttachmentPayload

	// Fallback is the sender-supplied plain-text rendition, if any.
	Fallback string

	// Reactions holds the emoji currently applied to this message, in the
	// order they were first added. Membership toggles; duplicates retract.
	Reactions []string

	// IsRead is a monotonic watermark flag: once true it never reverts.
	IsRead bool
}

// HasReaction reports whether emoji is currently applied to the message.
func (m *Message) HasReaction(emoji string) bool {
	return slices.Contains(m.Reactions, emoji)
}

// clone returns a copy safe to mutate without affecting handed-out values.
func (m *Message) clone() *Message {
	next := *m
	next.Reactions = slices.Clone(m.Reactions)
	return &next
}
