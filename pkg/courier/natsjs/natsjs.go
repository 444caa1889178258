// floatinbox - A decentralized-messaging inbox reconciliation engine.
// Copyright (C) 2026 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package natsjs implements the courier boundary on NATS JetStream. Each
// conversation maps to one stream with a single subject derived from the
// participant pair, so backfill is a replay from sequence 1 and the live
// subscription is a deliver-new ordered consumer on the same subject.
package natsjs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/lrhodin/floatinbox/pkg/courier"
)

const (
	subjectPrefix = "floatinbox.conv."
	streamPrefix  = "FLOATINBOX_"

	// backfillIdle bounds how long Messages waits for the next historical
	// message before concluding the replay has drained.
	backfillIdle = 5 * time.Second
)

// Transport is a logged-in courier endpoint on a NATS cluster.
type Transport struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	handle string
	log    zerolog.Logger
}

var _ courier.Directory = (*Transport)(nil)

// Dial connects to the given NATS URL and returns a transport sending as
// handle.
func Dial(url, handle string, log zerolog.Logger) (*Transport, error) {
	nc, err := nats.Connect(url, nats.Name("floatinbox/"+handle))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	t, err := New(nc, handle, log)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return t, nil
}

// New wraps an existing connection. The caller keeps ownership of nc unless
// the transport was created via Dial.
func New(nc *nats.Conn, handle string, log zerolog.Logger) (*Transport, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}
	return &Transport{nc: nc, js: js, handle: handle, log: log}, nil
}

func (t *Transport) Close() {
	t.nc.Close()
}

// topicFor derives a stable conversation topic from the participant pair.
// Hashing keeps handles (emails, phone URIs) out of subject names.
func topicFor(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	sum := sha256.Sum256([]byte(strings.Join(pair, "\x00")))
	return hex.EncodeToString(sum[:8])
}

// NewConversation ensures the conversation stream exists and returns a handle
// bound to it. Creating an already-existing stream is not an error.
func (t *Transport) NewConversation(_ context.Context, peer string) (courier.Conversation, error) {
	topic := topicFor(t.handle, peer)
	stream := streamPrefix + strings.ToUpper(topic)
	subject := subjectPrefix + topic
	_, err := t.js.AddStream(&nats.StreamConfig{
		Name:     stream,
		Subjects: []string{subject},
		Storage:  nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil, fmt.Errorf("failed to ensure stream %s: %w", stream, err)
	}
	return &Conversation{
		t:       t,
		peer:    peer,
		stream:  stream,
		subject: subject,
		log:     t.log.With().Str("conv", topic).Logger(),
	}, nil
}

// Conversation is one JetStream-backed conversation.
type Conversation struct {
	t       *Transport
	peer    string
	stream  string
	subject string
	log     zerolog.Logger
}

var _ courier.Conversation = (*Conversation)(nil)

func (c *Conversation) PeerAddress() string {
	return c.peer
}

func (c *Conversation) decode(msg *nats.Msg) (courier.Envelope, bool) {
	var env courier.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		c.log.Warn().Err(err).Msg("Dropping undecodable envelope from stream")
		return env, false
	}
	return env, true
}

// Messages replays the full conversation history in stored order.
func (c *Conversation) Messages(ctx context.Context) ([]courier.Envelope, error) {
	info, err := c.t.js.StreamInfo(c.stream)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream info for %s: %w", c.stream, err)
	}
	if info.State.Msgs == 0 {
		return nil, nil
	}
	lastSeq := info.State.LastSeq

	sub, err := c.t.js.SubscribeSync(c.subject, nats.OrderedConsumer(), nats.DeliverAll())
	if err != nil {
		return nil, fmt.Errorf("failed to open backfill consumer: %w", err)
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	var envs []courier.Envelope
	for {
		fetchCtx, cancel := context.WithTimeout(ctx, backfillIdle)
		msg, err := sub.NextMsgWithContext(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, fmt.Errorf("backfill read failed: %w", err)
		}
		if env, ok := c.decode(msg); ok {
			envs = append(envs, env)
		}
		meta, err := msg.Metadata()
		if err == nil && meta.Sequence.Stream >= lastSeq {
			break
		}
	}
	return envs, nil
}

// StreamMessages subscribes to messages published after this call. The
// returned channel is closed when ctx is cancelled.
func (c *Conversation) StreamMessages(ctx context.Context) (<-chan courier.Envelope, error) {
	raw := make(chan *nats.Msg, 256)
	sub, err := c.t.js.ChanSubscribe(c.subject, raw, nats.OrderedConsumer(), nats.DeliverNew())
	if err != nil {
		return nil, fmt.Errorf("failed to open live consumer: %w", err)
	}

	out := make(chan courier.Envelope)
	go func() {
		defer func() {
			_ = sub.Unsubscribe()
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-raw:
				env, ok := c.decode(msg)
				if !ok {
					continue
				}
				select {
				case <-ctx.Done():
					return
				case out <- env:
				}
			}
		}
	}()
	return out, nil
}

// Send publishes a new envelope. The envelope ID is assigned here, before
// publish, so redeliveries carry the same ID and deduplicate downstream.
func (c *Conversation) Send(ctx context.Context, content []byte, opts courier.SendOptions) error {
	ct := opts.ContentType
	if ct == (courier.ContentTypeID{}) {
		ct = courier.ContentTypeText
	}
	env := courier.Envelope{
		ID:          uuid.NewString(),
		Sender:      c.t.handle,
		SentAt:      time.Now().UTC(),
		ContentType: ct,
		Content:     content,
		Fallback:    opts.Fallback,
	}
	data, err := json.Marshal(&env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if _, err = c.t.js.Publish(c.subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", c.subject, err)
	}
	return nil
}
