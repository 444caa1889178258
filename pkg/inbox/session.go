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
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lrhodin/floatinbox/pkg/courier"
)

// ChangeFunc is notified after the store changed. Listeners run on the fold
// goroutine and must not block for long; anything slow (attachment
// resolution) should hand off to its own goroutine.
type ChangeFunc func(ctx context.Context, store *Store)

// Session owns one conversation's reconciled view for as long as that
// conversation is selected. Run consumes the one-shot backfill first, then
// the live stream, folding every event through the same path — the stream is
// the single source of truth, outbound sends included.
//
// Cancelling Run's context stops consumption; a deselected conversation's
// store never sees another fold. The session is single-consumer: events are
// folded one at a time, never concurrently.
type Session struct {
	conv      courier.Conversation
	store     *Store
	log       zerolog.Logger
	listeners []ChangeFunc
}

// SessionOption customizes a Session at construction.
type SessionOption func(*Session)

// WithLogger replaces the session's logger.
func WithLogger(logger zerolog.Logger) SessionOption {
	return func(s *Session) {
		s.log = logger
	}
}

// OnChange registers a listener called after every store mutation.
func OnChange(fn ChangeFunc) SessionOption {
	return func(s *Session) {
		s.listeners = append(s.listeners, fn)
	}
}

func NewSession(conv courier.Conversation, opts ...SessionOption) *Session {
	s := &Session{
		conv:  conv,
		store: NewStore(),
		log:   log.With().Str("peer", conv.PeerAddress()).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the session's view. Valid for the session's lifetime.
func (s *Session) Store() *Store {
	return s.store
}

// Conversation returns the underlying conversation handle.
func (s *Session) Conversation() courier.Conversation {
	return s.conv
}

func (s *Session) notify(ctx context.Context) {
	for _, fn := range s.listeners {
		fn(ctx, s.store)
	}
}

// Run performs the historical backfill and then consumes the live stream
// until ctx is cancelled or the stream ends. It returns nil on cancellation:
// switching conversations is a normal shutdown, not an error.
func (s *Session) Run(ctx context.Context) error {
	// Subscribe before backfilling so no event falls between the two. The
	// overlap this can produce is exactly what dedup-by-ID exists for.
	stream, err := s.conv.StreamMessages(ctx)
	if err != nil {
		return fmt.Errorf("failed to open live stream: %w", err)
	}

	history, err := s.conv.Messages(ctx)
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}
	changed := false
	for _, env := range history {
		if s.store.Fold(Classify(env)) {
			changed = true
		}
	}
	s.log.Debug().Int("events", len(history)).Int("messages", s.store.Len()).
		Msg("Backfill folded")
	if changed {
		s.notify(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-stream:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("live stream ended unexpectedly")
			}
			ev := Classify(env)
			if ev.Kind == KindUnknown {
				s.log.Debug().Str("content_type", env.ContentType.String()).
					Str("event_id", env.ID).Msg("Ignoring unclassifiable event")
			}
			if s.store.Fold(ev) {
				s.notify(ctx)
			}
		}
	}
}
