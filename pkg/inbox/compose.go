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
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lrhodin/floatinbox/pkg/courier"
)

// Composer orchestrates outbound sends: plain text, replies, reactions and
// attachments. It also holds the transient reply-target state and, for a
// conversation that isn't established yet, creates it on first send and
// hands it back to the caller.
//
// Sent messages are never injected into the store: they come back through
// the live stream like everything else.
type Composer struct {
	dir      courier.Directory
	pipeline *Pipeline
	log      zerolog.Logger

	mu      sync.Mutex
	conv    courier.Conversation
	peer    string
	replyTo *Message
}

// NewComposer builds a composer for an established conversation. conv may be
// nil when the peer has no conversation yet; the first Send then creates one
// with dir and returns it.
func NewComposer(conv courier.Conversation, dir courier.Directory, peer string, pipeline *Pipeline) *Composer {
	return &Composer{
		dir:      dir,
		pipeline: pipeline,
		conv:     conv,
		peer:     peer,
		log:      log.With().Str("component", "composer").Str("peer", peer).Logger(),
	}
}

// SetReplyTarget anchors the next outbound text to the given message.
func (c *Composer) SetReplyTarget(msg *Message) {
	c.mu.Lock()
	c.replyTo = msg
	c.mu.Unlock()
}

// ReplyTarget returns the pending reply anchor, if any.
func (c *Composer) ReplyTarget() *Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replyTo
}

// ClearReplyTarget drops the pending reply anchor.
func (c *Composer) ClearReplyTarget() {
	c.SetReplyTarget(nil)
}

// ensureConversation returns the conversation, creating it on first use.
// The second return value is non-nil exactly when a new conversation was
// created and should replace the caller's.
func (c *Composer) ensureConversation(ctx context.Context) (courier.Conversation, courier.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conv != nil {
		return c.conv, nil, nil
	}
	conv, err := c.dir.NewConversation(ctx, c.peer)
	if err != nil {
		return nil, nil, &SendError{Err: err}
	}
	c.log.Info().Msg("Created new conversation on first send")
	c.conv = conv
	return conv, conv, nil
}

// Send delivers text and/or the file at filePath. It fails with
// ErrEmptyMessage when the text is blank and there is no file.
//
// When both are present, the attachment is published first and the text
// follows as its own message — supplying text alongside a file is explicit
// user input, not something to discard silently.
//
// The returned conversation is non-nil only when this send established a new
// one; the caller should adopt it for subsequent use.
func (c *Composer) Send(ctx context.Context, text, filePath string) (courier.Conversation, error) {
	hasText := strings.TrimSpace(text) != ""
	if !hasText && filePath == "" {
		return nil, ErrEmptyMessage
	}
	conv, created, err := c.ensureConversation(ctx)
	if err != nil {
		return nil, err
	}

	if filePath != "" {
		if err = c.pipeline.Send(ctx, conv, filePath); err != nil {
			return created, err
		}
	}
	if !hasText {
		return created, nil
	}

	if target := c.ReplyTarget(); target != nil && target.ID != "" {
		content, err := courier.MarshalPayload(&courier.ReplyPayload{
			Reference: target.ID,
			Content:   text,
		})
		if err != nil {
			return created, &SendError{Err: err}
		}
		err = conv.Send(ctx, content, courier.SendOptions{
			ContentType: courier.ContentTypeReply,
			Fallback:    text,
		})
		if err != nil {
			return created, &SendError{Err: err}
		}
		c.ClearReplyTarget()
		return created, nil
	}

	err = conv.Send(ctx, []byte(text), courier.SendOptions{ContentType: courier.ContentTypeText})
	if err != nil {
		return created, &SendError{Err: err}
	}
	return created, nil
}

// React toggles emoji on the given message for everyone: the action is
// derived from the current view, so re-sending an applied emoji retracts it.
func (c *Composer) React(ctx context.Context, msg *Message, emoji string) error {
	action := courier.ReactionActionAdded
	if msg.HasReaction(emoji) {
		action = courier.ReactionActionRemoved
	}
	content, err := courier.MarshalPayload(&courier.ReactionPayload{
		Reference: msg.ID,
		Action:    action,
		Content:   emoji,
		Schema:    courier.ReactionSchemaUnicode,
	})
	if err != nil {
		return &SendError{Err: err}
	}
	conv, _, err := c.ensureConversation(ctx)
	if err != nil {
		return err
	}
	err = conv.Send(ctx, content, courier.SendOptions{
		ContentType: courier.ContentTypeReaction,
		Fallback:    action + " " + emoji,
	})
	if err != nil {
		return &SendError{Err: err}
	}
	return nil
}
