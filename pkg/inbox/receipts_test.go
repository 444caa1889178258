package inbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lrhodin/floatinbox/pkg/courier"
)

func TestReceiptEmitter_OnePerUnreadTail(t *testing.T) {
	conv := &recordingConv{}
	emitter := NewReceiptEmitter(conv)
	store := NewStore()
	ctx := context.Background()

	// Three unread messages arrive before any receipt goes out.
	foldAll(t, store,
		textEnv("msg-1", them, at(10), "a"),
		textEnv("msg-2", them, at(20), "b"),
		textEnv("msg-3", them, at(30), "c"),
	)
	emitter.Observe(ctx, store)

	require.Len(t, conv.sentWithType(courier.ContentTypeReadReceipt), 1,
		"one receipt for the whole unread tail, not one per message")

	// Same tail again: already receipted, nothing new goes out.
	emitter.Observe(ctx, store)
	assert.Len(t, conv.sentWithType(courier.ContentTypeReadReceipt), 1)
}

func TestReceiptEmitter_NewTailEmitsAgain(t *testing.T) {
	conv := &recordingConv{}
	emitter := NewReceiptEmitter(conv)
	store := NewStore()
	ctx := context.Background()

	foldAll(t, store, textEnv("msg-1", them, at(10), "a"))
	emitter.Observe(ctx, store)

	foldAll(t, store, textEnv("msg-2", them, at(20), "b"))
	emitter.Observe(ctx, store)

	assert.Len(t, conv.sentWithType(courier.ContentTypeReadReceipt), 2)
}

func TestReceiptEmitter_NothingUnreadNothingSent(t *testing.T) {
	conv := &recordingConv{}
	emitter := NewReceiptEmitter(conv)
	store := NewStore()
	ctx := context.Background()

	emitter.Observe(ctx, store)

	foldAll(t, store,
		textEnv("msg-1", them, at(10), "a"),
		receiptEnv("rr-1", at(10)),
	)
	emitter.Observe(ctx, store)

	assert.Empty(t, conv.sentCalls())
}

func TestReceiptEmitter_RetriesAfterSendFailure(t *testing.T) {
	conv := &recordingConv{failWith: errors.New("delivery failed")}
	emitter := NewReceiptEmitter(conv)
	store := NewStore()
	ctx := context.Background()

	foldAll(t, store, textEnv("msg-1", them, at(10), "a"))
	emitter.Observe(ctx, store)
	assert.Empty(t, conv.sentCalls())

	// The watermark did not advance, so the next change retries.
	conv.mu.Lock()
	conv.failWith = nil
	conv.mu.Unlock()
	emitter.Observe(ctx, store)
	assert.Len(t, conv.sentWithType(courier.ContentTypeReadReceipt), 1)
}
