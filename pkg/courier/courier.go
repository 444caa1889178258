// floatinbox - A decentralized-messaging inbox reconciliation engine.
// Copyright (C) 2026 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package courier defines the boundary to the underlying messaging protocol:
// raw envelopes, content-type identifiers, and the conversation surface the
// inbox engine consumes. Implementations live in subpackages (natsjs for a
// JetStream-backed network, memnet for an in-process loopback).
package courier

import (
	"context"
	"fmt"
	"time"
)

// ContentTypeID identifies the codec an envelope's content was encoded with.
// Identity is structural: two IDs are the same type when authority and type
// match, regardless of version (minor versions must be backwards compatible).
type ContentTypeID struct {
	AuthorityID  string `json:"authorityId"`
	TypeID       string `json:"typeId"`
	VersionMajor uint32 `json:"versionMajor"`
	VersionMinor uint32 `json:"versionMinor"`
}

// SameAs reports whether two content type IDs refer to the same content type,
// ignoring versions.
func (c ContentTypeID) SameAs(other ContentTypeID) bool {
	return c.AuthorityID == other.AuthorityID && c.TypeID == other.TypeID
}

func (c ContentTypeID) String() string {
	return fmt.Sprintf("%s/%s:%d.%d", c.AuthorityID, c.TypeID, c.VersionMajor, c.VersionMinor)
}

// The standard content types understood by the inbox engine. Anything else is
// classified as unknown and rendered from the envelope's fallback text.
var (
	ContentTypeText             = ContentTypeID{AuthorityID: "floatinbox.dev", TypeID: "text", VersionMajor: 1}
	ContentTypeReply            = ContentTypeID{AuthorityID: "floatinbox.dev", TypeID: "reply", VersionMajor: 1}
	ContentTypeReaction         = ContentTypeID{AuthorityID: "floatinbox.dev", TypeID: "reaction", VersionMajor: 1}
	ContentTypeReadReceipt      = ContentTypeID{AuthorityID: "floatinbox.dev", TypeID: "readReceipt", VersionMajor: 1}
	ContentTypeRemoteAttachment = ContentTypeID{AuthorityID: "floatinbox.dev", TypeID: "remoteStaticAttachment", VersionMajor: 1}
)

// Envelope is one raw conversation event as delivered by the protocol.
// The ID is protocol-assigned and stable across redeliveries, which is what
// makes store-level deduplication possible.
type Envelope struct {
	ID          string        `json:"id"`
	Sender      string        `json:"sender"`
	SentAt      time.Time     `json:"sentAt"`
	ContentType ContentTypeID `json:"contentType"`
	Content     []byte        `json:"content,omitempty"`

	// Fallback is a plain-text rendition supplied by the sender for clients
	// that don't understand the content type. May be empty.
	Fallback string `json:"fallback,omitempty"`
}

// SendOptions carries per-send metadata. The zero value sends plain text.
type SendOptions struct {
	ContentType ContentTypeID
	Fallback    string
}

// Conversation is a single peer-to-peer message channel.
//
// Messages is the one-shot historical backfill; StreamMessages is the live
// subscription. The stream channel is closed when the context is cancelled or
// the underlying subscription ends. Sends are observed back through the same
// stream — the engine never injects outbound messages into its store directly.
type Conversation interface {
	PeerAddress() string
	Messages(ctx context.Context) ([]Envelope, error)
	StreamMessages(ctx context.Context) (<-chan Envelope, error)
	Send(ctx context.Context, content []byte, opts SendOptions) error
}

// Directory opens conversations with new peers.
type Directory interface {
	NewConversation(ctx context.Context, peer string) (Conversation, error)
}
