// floatinbox - A decentralized-messaging inbox reconciliation engine.
// Copyright (C) 2026 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package inbox

import (
	"encoding/json"

	"github.com/lrhodin/floatinbox/pkg/courier"
)

// ContentKind is the closed set of event kinds the engine understands.
// Classification happens exactly once, at ingestion; everything downstream
// switches exhaustively on the kind instead of re-checking content types.
type ContentKind int

const (
	KindUnknown ContentKind = iota
	KindText
	KindReply
	KindReaction
	KindReadReceipt
	KindRemoteAttachment
)

func (k ContentKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindReply:
		return "reply"
	case KindReaction:
		return "reaction"
	case KindReadReceipt:
		return "readReceipt"
	case KindRemoteAttachment:
		return "remoteAttachment"
	default:
		return "unknown"
	}
}

// Classified is an inbound envelope with its kind decided and its payload
// decoded. A malformed payload demotes the event to KindUnknown rather than
// surfacing an error: classification never fails.
type Classified struct {
	Kind     ContentKind
	Envelope courier.Envelope

	// Text is the body for KindText and KindReply.
	Text string

	// Reaction is set for KindReaction.
	Reaction *courier.ReactionPayload

	// Reply is set for KindReply.
	Reply *courier.ReplyPayload

	// Attachment is set for KindRemoteAttachment.
	Attachment *courier.RemoteAttachmentPayload
}

// FallbackText returns the best-effort textual rendition of an event the
// engine can't otherwise render: the sender-supplied fallback if present,
// else the raw payload.
func (c Classified) FallbackText() string {
	if c.Envelope.Fallback != "" {
		return c.Envelope.Fallback
	}
	return string(c.Envelope.Content)
}

// Classify decides which kind an inbound envelope represents, based on its
// declared content type. Unrecognized types and undecodable payloads come
// back as KindUnknown; the caller renders fallback text or drops the event.
func Classify(env courier.Envelope) Classified {
	out := Classified{Kind: KindUnknown, Envelope: env}
	switch {
	case env.ContentType.SameAs(courier.ContentTypeText):
		out.Kind = KindText
		out.Text = string(env.Content)
	case env.ContentType.SameAs(courier.ContentTypeReply):
		var payload courier.ReplyPayload
		if json.Unmarshal(env.Content, &payload) != nil || payload.Reference == "" {
			return out
		}
		out.Kind = KindReply
		out.Reply = &payload
		out.Text = payload.Content
	case env.ContentType.SameAs(courier.ContentTypeReaction):
		var payload courier.ReactionPayload
		if json.Unmarshal(env.Content, &payload) != nil || payload.Reference == "" || payload.Content == "" {
			return out
		}
		out.Kind = KindReaction
		out.Reaction = &payload
	case env.ContentType.SameAs(courier.ContentTypeReadReceipt):
		// The receipt's own sent time is the watermark; no payload needed.
		out.Kind = KindReadReceipt
	case env.ContentType.SameAs(courier.ContentTypeRemoteAttachment):
		var payload courier.RemoteAttachmentPayload
		if json.Unmarshal(env.Content, &payload) != nil || payload.URL == "" {
			return out
		}
		out.Kind = KindRemoteAttachment
		out.Attachment = &payload
	}
	return out
}
