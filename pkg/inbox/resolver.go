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
	"os"
	"path/filepath"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/lrhodin/floatinbox/pkg/attachcodec"
	"github.com/lrhodin/floatinbox/pkg/courier"
)

// AttachmentLoader fetches and decrypts a remote attachment pointer.
// *attachcodec.Codec is the production implementation.
type AttachmentLoader interface {
	Load(ctx context.Context, ptr *courier.RemoteAttachmentPayload) (*attachcodec.Attachment, error)
}

var _ AttachmentLoader = (*attachcodec.Codec)(nil)

// resolveResult is one attachment cache entry. A failed entry pins the
// failure for the session: the message renders without a displayable source
// and is not re-fetched on later store changes.
type resolveResult struct {
	uri    string
	failed bool
}

// Resolver turns remote attachment pointers into locally displayable file
// URIs, once per message per session. Resolutions for distinct messages run
// concurrently with no ordering guarantee; singleflight collapses concurrent
// requests for the same message into one fetch.
type Resolver struct {
	loader   AttachmentLoader
	cacheDir string
	ownsDir  bool
	cache    sync.Map // message ID → resolveResult
	group    singleflight.Group
	log      zerolog.Logger
}

// NewResolver creates a resolver writing decrypted attachments under
// cacheDir. An empty cacheDir gets a fresh temp directory, removed by Close;
// either way nothing outlives the session.
func NewResolver(loader AttachmentLoader, cacheDir string) (*Resolver, error) {
	ownsDir := false
	if cacheDir == "" {
		dir, err := os.MkdirTemp("", "floatinbox-attachments-")
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment cache dir: %w", err)
		}
		cacheDir = dir
		ownsDir = true
	}
	return &Resolver{
		loader:   loader,
		cacheDir: cacheDir,
		ownsDir:  ownsDir,
		log:      log.With().Str("component", "attachment_resolver").Logger(),
	}, nil
}

// Close discards the session cache.
func (r *Resolver) Close() {
	if r.ownsDir {
		_ = os.RemoveAll(r.cacheDir)
	}
}

// Resolve returns a displayable file URI for an attachment message, or ""
// when the message has no displayable source (wrong kind, or resolution
// failed). Failures are logged and cached, never propagated: the message
// remains renderable through its fallback content.
func (r *Resolver) Resolve(ctx context.Context, msg *Message) string {
	if msg == nil || msg.Kind != KindRemoteAttachment || msg.Attachment == nil {
		return ""
	}
	if cached, ok := r.cache.Load(msg.ID); ok {
		return cached.(resolveResult).uri
	}
	result, _, _ := r.group.Do(msg.ID, func() (any, error) {
		// Re-check under singleflight: a concurrent caller may have won.
		if cached, ok := r.cache.Load(msg.ID); ok {
			return cached.(resolveResult), nil
		}
		res := r.fetch(ctx, msg)
		r.cache.Store(msg.ID, res)
		return res, nil
	})
	return result.(resolveResult).uri
}

func (r *Resolver) fetch(ctx context.Context, msg *Message) resolveResult {
	att, err := r.loader.Load(ctx, msg.Attachment)
	if err != nil {
		resErr := &ResolutionError{MessageID: msg.ID, Err: err}
		r.log.Warn().Err(resErr).Str("url", msg.Attachment.URL).
			Msg("Failed to load remote attachment")
		return resolveResult{failed: true}
	}
	name := msg.ID + mimetype.Detect(att.Data).Extension()
	path := filepath.Join(r.cacheDir, name)
	if err = os.WriteFile(path, att.Data, 0o600); err != nil {
		r.log.Warn().Err(err).Msg("Failed to write attachment to cache")
		return resolveResult{failed: true}
	}
	r.log.Debug().Str("message_id", msg.ID).Str("mime_type", att.MimeType).
		Int("size", len(att.Data)).Msg("Resolved remote attachment")
	return resolveResult{uri: "file://" + path}
}

// ResolveAll resolves every not-yet-cached attachment message in the view,
// concurrently, and returns when all are done. Messages already resolved
// (or already failed) cost nothing, so calling this on every store change
// only does work proportional to new attachment messages.
func (r *Resolver) ResolveAll(ctx context.Context, msgs []*Message) {
	var wg sync.WaitGroup
	for _, msg := range msgs {
		if msg.Kind != KindRemoteAttachment {
			continue
		}
		if _, ok := r.cache.Load(msg.ID); ok {
			continue
		}
		wg.Add(1)
		go func(msg *Message) {
			defer wg.Done()
			r.Resolve(ctx, msg)
		}(msg)
	}
	wg.Wait()
}
