// floatinbox - A decentralized-messaging inbox reconciliation engine.
// Copyright (C) 2026 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package courier

import "encoding/json"

// Reaction actions. A user re-sending the same emoji retracts it, so senders
// derive the action from their current view of the target message.
const (
	ReactionActionAdded   = "added"
	ReactionActionRemoved = "removed"
)

// ReactionSchemaUnicode marks the reaction content as a unicode emoji.
const ReactionSchemaUnicode = "unicode"

// ReplyPayload is the content of a ContentTypeReply envelope. Reference is a
// lookup key for the replied-to message, not a structural pointer: the target
// may legitimately be absent from the receiver's view.
type ReplyPayload struct {
	Reference string `json:"reference"`
	Content   string `json:"content"`
}

// ReactionPayload is the content of a ContentTypeReaction envelope. It is a
// mutation applied to an earlier message, never a message of its own.
type ReactionPayload struct {
	Reference string `json:"reference"`
	Action    string `json:"action"`
	Content   string `json:"content"`
	Schema    string `json:"schema"`
}

// RemoteAttachmentPayload points at an encrypted binary object hosted outside
// the message channel, together with the material needed to fetch, verify and
// decrypt it.
type RemoteAttachmentPayload struct {
	URL           string `json:"url"`
	ContentDigest string `json:"contentDigest"`
	Salt          []byte `json:"salt"`
	Nonce         []byte `json:"nonce"`
	Secret        []byte `json:"secret"`
	Scheme        string `json:"scheme"`
	Filename      string `json:"filename"`
	ContentLength int64  `json:"contentLength"`
}

// MarshalPayload encodes a typed payload for the wire.
func MarshalPayload(v any) ([]byte, error) {
	return json.Marshal(v)
}
