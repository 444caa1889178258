// floatinbox - A decentralized-messaging inbox reconciliation engine.
// Copyright (C) 2026 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package attachcodec encrypts outbound attachments for external hosting and
// loads remote attachment pointers back into displayable bytes. The payload
// format is a JSON-encoded attachment sealed with AES-256-GCM; the key is
// derived from a random secret and salt with HKDF-SHA256, and integrity is
// checked against a SHA-256 digest of the ciphertext before decryption.
package attachcodec

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"go.mau.fi/util/random"
	"golang.org/x/crypto/hkdf"

	"github.com/lrhodin/floatinbox/pkg/courier"
)

const (
	secretLength = 32
	saltLength   = 32
	nonceLength  = 12

	// maxRemoteSize caps how much we're willing to download for a single
	// attachment. Matches the hosted-object limit on the storage side.
	maxRemoteSize = 100 << 20
)

// Attachment is a decrypted attachment: the raw bytes plus the metadata that
// travels encrypted alongside them.
type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Encrypted is the result of encoding an attachment: the hosted payload and
// the material the recipient needs to verify and decrypt it.
type Encrypted struct {
	Payload []byte
	Digest  string
	Salt    []byte
	Nonce   []byte
	Secret  []byte
}

// Codec implements both directions of the remote attachment exchange.
type Codec struct {
	// HTTP is used to fetch hosted payloads. Defaults to http.DefaultClient.
	HTTP *http.Client
}

func (c *Codec) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func deriveKey(secret, salt []byte) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, nil), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncodeEncrypted seals the attachment with a freshly generated secret, salt
// and nonce. The returned digest is computed over the ciphertext payload so
// recipients can verify integrity before attempting decryption.
func (c *Codec) EncodeEncrypted(att Attachment) (*Encrypted, error) {
	plaintext, err := json.Marshal(&att)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attachment: %w", err)
	}
	secret := random.Bytes(secretLength)
	salt := random.Bytes(saltLength)
	nonce := random.Bytes(nonceLength)
	key, err := deriveKey(secret, salt)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	payload := gcm.Seal(nil, nonce, plaintext, nil)
	digest := sha256.Sum256(payload)
	return &Encrypted{
		Payload: payload,
		Digest:  hex.EncodeToString(digest[:]),
		Salt:    salt,
		Nonce:   nonce,
		Secret:  secret,
	}, nil
}

// Load fetches the hosted payload behind a remote attachment pointer, checks
// its digest and decrypts it. Any failure (unreachable host, digest mismatch,
// bad key material) is returned as an error for the caller to swallow.
func (c *Codec) Load(ctx context.Context, ptr *courier.RemoteAttachmentPayload) (*Attachment, error) {
	if ptr == nil || ptr.URL == "" {
		return nil, fmt.Errorf("remote attachment pointer has no URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ptr.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch request: %w", err)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", ptr.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, ptr.URL)
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	digest := sha256.Sum256(payload)
	if got := hex.EncodeToString(digest[:]); got != ptr.ContentDigest {
		return nil, fmt.Errorf("content digest mismatch: got %s, pointer says %s", got, ptr.ContentDigest)
	}

	key, err := deriveKey(ptr.Secret, ptr.Salt)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	if len(ptr.Nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("bad nonce length %d", len(ptr.Nonce))
	}
	plaintext, err := gcm.Open(nil, ptr.Nonce, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt attachment: %w", err)
	}

	var att Attachment
	if err = json.Unmarshal(plaintext, &att); err != nil {
		return nil, fmt.Errorf("failed to decode attachment: %w", err)
	}
	if att.MimeType == "" {
		att.MimeType = mimetype.Detect(att.Data).String()
	}
	return &att, nil
}
