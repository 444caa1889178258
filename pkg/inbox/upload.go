// floatinbox - A decentralized-messaging inbox reconciliation engine.
// Copyright (C) 2026 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package inbox

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lrhodin/floatinbox/pkg/attachcodec"
	"github.com/lrhodin/floatinbox/pkg/courier"
	"github.com/lrhodin/floatinbox/pkg/objstore"
)

// Stage is the upload pipeline's current position. Failed is reachable from
// every non-idle stage; Done resets to Idle.
type Stage int

const (
	StageIdle Stage = iota
	StageUploading
	StageEncoding
	StageHosting
	StagePublishing
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageUploading:
		return "uploading"
	case StageEncoding:
		return "encoding"
	case StageHosting:
		return "hosting"
	case StagePublishing:
		return "publishing"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// AttachmentEncoder encrypts an outbound attachment for hosting.
// *attachcodec.Codec is the production implementation.
type AttachmentEncoder interface {
	EncodeEncrypted(att attachcodec.Attachment) (*attachcodec.Encrypted, error)
}

var _ AttachmentEncoder = (*attachcodec.Codec)(nil)

// Pipeline drives one outbound attachment through read → encrypt → host →
// publish. At most one upload is in flight at a time; a second request is
// rejected with ErrUploadInFlight so two pipelines can never interleave.
//
// On any failure the error is surfaced, the pipeline resets, and no partial
// remote attachment pointer is published.
type Pipeline struct {
	encoder AttachmentEncoder
	store   objstore.Store
	gateway string
	log     zerolog.Logger

	mu       sync.Mutex
	stage    Stage
	status   string
	inFlight bool
}

// NewPipeline builds a pipeline hosting payloads via store and deriving
// fetch URLs as https://<cid>.<gateway>/<filename>. The store handle carries
// its own credentials, resolved once by the caller.
func NewPipeline(encoder AttachmentEncoder, store objstore.Store, gateway string) *Pipeline {
	return &Pipeline{
		encoder: encoder,
		store:   store,
		gateway: gateway,
		log:     log.With().Str("component", "upload_pipeline").Logger(),
	}
}

// Stage returns the pipeline's current stage.
func (p *Pipeline) Stage() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage
}

// Status returns the transient status text ("Uploading...", the hosted URL,
// "Sending..."), empty when idle.
func (p *Pipeline) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Pipeline) setStage(stage Stage, status string) {
	p.mu.Lock()
	p.stage = stage
	p.status = status
	p.mu.Unlock()
}

func (p *Pipeline) fail(stage Stage, err error) error {
	uploadErr := &UploadError{Stage: stage, Err: err}
	p.log.Err(uploadErr).Msg("Attachment upload failed")
	p.setStage(StageFailed, uploadErr.Error())
	return uploadErr
}

// Send runs the full pipeline for the file at path and publishes the
// resulting remote attachment pointer to conv.
func (p *Pipeline) Send(ctx context.Context, conv courier.Conversation, path string) error {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return ErrUploadInFlight
	}
	p.inFlight = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	filename := filepath.Base(path)

	p.setStage(StageUploading, "Uploading...")
	data, err := os.ReadFile(path)
	if err != nil {
		return p.fail(StageUploading, err)
	}
	mime := mimetype.Detect(data)
	logEvt := p.log.Debug().Str("filename", filename).
		Str("mime_type", mime.String()).Int("size", len(data))
	if strings.HasPrefix(mime.String(), "image/") {
		if cfg, _, cfgErr := image.DecodeConfig(bytes.NewReader(data)); cfgErr == nil {
			logEvt = logEvt.Int("width", cfg.Width).Int("height", cfg.Height)
		}
	}
	logEvt.Msg("Read outbound attachment")

	p.setStage(StageEncoding, "Encrypting...")
	encrypted, err := p.encoder.EncodeEncrypted(attachcodec.Attachment{
		Filename: filename,
		MimeType: mime.String(),
		Data:     data,
	})
	if err != nil {
		return p.fail(StageEncoding, err)
	}

	p.setStage(StageHosting, "Uploading to storage...")
	cid, err := p.store.Put(ctx, []objstore.Blob{{Name: filename, Data: encrypted.Payload}})
	if err != nil {
		return p.fail(StageHosting, err)
	}
	url := fmt.Sprintf("https://%s.%s/%s", cid, p.gateway, filename)
	p.setStage(StageHosting, url)

	pointer := courier.RemoteAttachmentPayload{
		URL:           url,
		ContentDigest: encrypted.Digest,
		Salt:          encrypted.Salt,
		Nonce:         encrypted.Nonce,
		Secret:        encrypted.Secret,
		Scheme:        "https://",
		Filename:      filename,
		ContentLength: int64(len(data)),
	}
	content, err := courier.MarshalPayload(&pointer)
	if err != nil {
		return p.fail(StagePublishing, err)
	}

	p.setStage(StagePublishing, "Sending...")
	err = conv.Send(ctx, content, courier.SendOptions{
		ContentType: courier.ContentTypeRemoteAttachment,
		Fallback:    "Attachment: " + filename,
	})
	if err != nil {
		return p.fail(StagePublishing, err)
	}

	p.log.Info().Str("filename", filename).Str("url", url).Msg("Attachment published")
	p.setStage(StageIdle, "")
	return nil
}
