// floatinbox - A decentralized-messaging inbox reconciliation engine.
// Copyright (C) 2026 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package inbox

import (
	"errors"
	"fmt"
)

// ErrEmptyMessage is returned by Composer.Send when there is neither text nor
// an attachment to send. Surfaced to the user as a blocking notice.
var ErrEmptyMessage = errors.New("message is empty: provide text or an attachment")

// ErrUploadInFlight is returned when a second attachment upload is requested
// while one is still running. Uploads are never interleaved; the caller
// retries after the current one finishes.
var ErrUploadInFlight = errors.New("an attachment upload is already in flight")

// UploadError reports which pipeline stage an outbound attachment failed in.
// No partial pointer is ever published after one of these.
type UploadError struct {
	Stage Stage
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed during %s: %v", e.Stage, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// ResolutionError reports a failed attachment resolution. It is logged and
// cached, never returned to render paths: the message stays renderable with
// no displayable source.
type ResolutionError struct {
	MessageID string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve attachment for message %s: %v", e.MessageID, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// SendError wraps a transport delivery failure. The message is not retried
// and never enters the store optimistically; the sender sees no echo until
// the network accepts it.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send message: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
