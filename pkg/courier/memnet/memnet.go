// floatinbox - A decentralized-messaging inbox reconciliation engine.
// Copyright (C) 2026 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package memnet is an in-process loopback implementation of the courier
// boundary. Every send is appended to a shared log and echoed to all live
// subscribers, so the engine observes its own messages through the stream
// exactly as it would on a real network. Used by tests and local CLI runs.
package memnet

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lrhodin/floatinbox/pkg/courier"
)

// Network is a hub of in-memory conversations keyed by participant pair.
type Network struct {
	mu    sync.Mutex
	chans map[string]*channel
	clock func() time.Time
}

func NewNetwork() *Network {
	return &Network{
		chans: make(map[string]*channel),
		clock: time.Now,
	}
}

// SetClock overrides the timestamp source for deterministic tests.
func (n *Network) SetClock(clock func() time.Time) {
	n.mu.Lock()
	n.clock = clock
	n.mu.Unlock()
}

func (n *Network) now() time.Time {
	n.mu.Lock()
	clock := n.clock
	n.mu.Unlock()
	return clock()
}

// Login returns a peer handle bound to this network. Peer implements
// courier.Directory.
func (n *Network) Login(handle string) *Peer {
	return &Peer{net: n, handle: handle}
}

func topicFor(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}

type Peer struct {
	net    *Network
	handle string
}

var _ courier.Directory = (*Peer)(nil)

func (p *Peer) Handle() string {
	return p.handle
}

// NewConversation opens (or joins) the conversation between this peer and the
// given address. Both sides share one log; each side sees its own view.
func (p *Peer) NewConversation(_ context.Context, peer string) (courier.Conversation, error) {
	topic := topicFor(p.handle, peer)
	p.net.mu.Lock()
	ch, ok := p.net.chans[topic]
	if !ok {
		ch = &channel{}
		p.net.chans[topic] = ch
	}
	p.net.mu.Unlock()
	return &Conversation{net: p.net, ch: ch, self: p.handle, peer: peer}, nil
}

// channel is the shared per-pair event log plus live subscribers.
type channel struct {
	mu   sync.Mutex
	log  []courier.Envelope
	subs map[chan courier.Envelope]struct{}
}

func (ch *channel) inject(env courier.Envelope) {
	ch.mu.Lock()
	ch.log = append(ch.log, env)
	for sub := range ch.subs {
		select {
		case sub <- env:
		default:
			// Subscriber fell too far behind; it will re-read via backfill.
		}
	}
	ch.mu.Unlock()
}

// Conversation is one participant's view of a shared channel.
type Conversation struct {
	net  *Network
	ch   *channel
	self string
	peer string

	// FailSends, when set, makes Send return this error without delivering.
	// Test hook for transport failure paths.
	FailSends error
}

var _ courier.Conversation = (*Conversation)(nil)

func (c *Conversation) PeerAddress() string {
	return c.peer
}

func (c *Conversation) Messages(_ context.Context) ([]courier.Envelope, error) {
	c.ch.mu.Lock()
	defer c.ch.mu.Unlock()
	return append([]courier.Envelope(nil), c.ch.log...), nil
}

func (c *Conversation) StreamMessages(ctx context.Context) (<-chan courier.Envelope, error) {
	sub := make(chan courier.Envelope, 256)
	c.ch.mu.Lock()
	if c.ch.subs == nil {
		c.ch.subs = make(map[chan courier.Envelope]struct{})
	}
	c.ch.subs[sub] = struct{}{}
	c.ch.mu.Unlock()

	out := make(chan courier.Envelope)
	go func() {
		defer func() {
			c.ch.mu.Lock()
			delete(c.ch.subs, sub)
			c.ch.mu.Unlock()
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case env := <-sub:
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

func (c *Conversation) Send(_ context.Context, content []byte, opts courier.SendOptions) error {
	if c.FailSends != nil {
		return c.FailSends
	}
	ct := opts.ContentType
	if ct == (courier.ContentTypeID{}) {
		ct = courier.ContentTypeText
	}
	c.ch.inject(courier.Envelope{
		ID:          uuid.NewString(),
		Sender:      c.self,
		SentAt:      c.net.now().UTC(),
		ContentType: ct,
		Content:     append([]byte(nil), content...),
		Fallback:    opts.Fallback,
	})
	return nil
}

// Inject delivers an arbitrary pre-built envelope, bypassing Send. Tests use
// it to simulate duplicate deliveries, foreign senders and malformed events.
func (c *Conversation) Inject(env courier.Envelope) {
	c.ch.inject(env)
}
