// floatinbox - A decentralized-messaging inbox reconciliation engine.
// Copyright (C) 2026 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package objstore is the boundary to the content-addressed object hosting
// service. The upload pipeline only ever sees the Store interface; the HTTP
// implementation holds credentials resolved once at construction.
package objstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
)

// Blob is one named object in an upload batch.
type Blob struct {
	Name string
	Data []byte
}

// Store hosts blobs and returns a public content identifier for the batch.
type Store interface {
	Put(ctx context.Context, blobs []Blob) (string, error)
}

// HTTPStore talks to a web3.storage-style upload endpoint: a multipart POST
// authenticated with a bearer token, answered with {"cid": "..."}.
type HTTPStore struct {
	endpoint string
	token    string
	http     *http.Client
}

var _ Store = (*HTTPStore)(nil)

func NewHTTPStore(endpoint, token string) *HTTPStore {
	return &HTTPStore{endpoint: endpoint, token: token, http: http.DefaultClient}
}

func (s *HTTPStore) Put(ctx context.Context, blobs []Blob) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, blob := range blobs {
		part, err := mw.CreateFormFile("file", blob.Name)
		if err != nil {
			return "", fmt.Errorf("failed to build upload body: %w", err)
		}
		if _, err = part.Write(blob.Data); err != nil {
			return "", fmt.Errorf("failed to build upload body: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, msg)
	}

	var result struct {
		CID string `json:"cid"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if result.CID == "" {
		return "", fmt.Errorf("upload response carried no cid")
	}
	return result.CID, nil
}

// MemStore keeps uploads in memory and derives the cid from the content.
// Backs tests and local CLI runs.
type MemStore struct {
	mu      sync.Mutex
	objects map[string][]Blob
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string][]Blob)}
}

func (s *MemStore) Put(_ context.Context, blobs []Blob) (string, error) {
	sum := sha256.New()
	for _, blob := range blobs {
		sum.Write([]byte(blob.Name))
		sum.Write(blob.Data)
	}
	cid := hex.EncodeToString(sum.Sum(nil))[:32]
	s.mu.Lock()
	s.objects[cid] = blobs
	s.mu.Unlock()
	return cid, nil
}

// Get returns the blobs stored under cid.
func (s *MemStore) Get(cid string) ([]Blob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blobs, ok := s.objects[cid]
	return blobs, ok
}
