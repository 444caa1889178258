package inbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lrhodin/floatinbox/pkg/courier"
	"github.com/lrhodin/floatinbox/pkg/courier/memnet"
)

func openPair(t *testing.T) (*memnet.Conversation, *memnet.Conversation) {
	t.Helper()
	net := memnet.NewNetwork()
	mine, err := net.Login(me).NewConversation(context.Background(), them)
	require.NoError(t, err)
	theirs, err := net.Login(them).NewConversation(context.Background(), me)
	require.NoError(t, err)
	return mine.(*memnet.Conversation), theirs.(*memnet.Conversation)
}

func waitForLen(t *testing.T, store *Store, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return store.Len() == n
	}, 5*time.Second, 5*time.Millisecond, "store never reached %d messages", n)
}

func TestSession_BackfillThenStream(t *testing.T) {
	mine, theirs := openPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// History present before the session opens.
	theirs.Inject(textEnv("msg-1", them, at(10), "old one"))
	theirs.Inject(textEnv("msg-2", them, at(20), "old two"))

	session := NewSession(mine)
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	waitForLen(t, session.Store(), 2)

	// Live events flow through the same fold path.
	theirs.Inject(textEnv("msg-3", them, at(30), "live"))
	waitForLen(t, session.Store(), 3)

	msgs := session.Store().Messages()
	assert.Equal(t, "msg-1", msgs[0].ID)
	assert.Equal(t, "msg-2", msgs[1].ID)
	assert.Equal(t, "msg-3", msgs[2].ID)

	cancel()
	require.NoError(t, <-done)
}

func TestSession_DuplicateAcrossBackfillAndStream(t *testing.T) {
	mine, theirs := openPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := textEnv("msg-1", them, at(10), "hello")
	theirs.Inject(env)

	session := NewSession(mine)
	go func() { _ = session.Run(ctx) }()
	waitForLen(t, session.Store(), 1)

	// Redelivery of the same event over the stream must not duplicate it.
	theirs.Inject(env)
	theirs.Inject(textEnv("msg-2", them, at(20), "after"))
	waitForLen(t, session.Store(), 2)
	assert.Equal(t, 2, session.Store().Len())
}

func TestSession_OutboundObservedViaStream(t *testing.T) {
	mine, _ := openPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := NewSession(mine)
	go func() { _ = session.Run(ctx) }()

	// The send goes to the network; the store learns about it from the echo.
	require.NoError(t, mine.Send(ctx, []byte("sent by me"), courier.SendOptions{}))
	waitForLen(t, session.Store(), 1)
	msg := session.Store().Messages()[0]
	assert.Equal(t, me, msg.Sender)
	assert.Equal(t, "sent by me", msg.Text)
}

func TestSession_CancelStopsFolding(t *testing.T) {
	mine, theirs := openPair(t)
	ctx, cancel := context.WithCancel(context.Background())

	session := NewSession(mine)
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	theirs.Inject(textEnv("msg-1", them, at(10), "before switch"))
	waitForLen(t, session.Store(), 1)

	cancel()
	require.NoError(t, <-done)

	// Events after deselection never reach the discarded store.
	theirs.Inject(textEnv("msg-2", them, at(20), "after switch"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, session.Store().Len())
}

func TestSession_ChangeListenerFiresPerMutation(t *testing.T) {
	mine, theirs := openPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan int, 16)
	session := NewSession(mine, OnChange(func(_ context.Context, store *Store) {
		changes <- store.Len()
	}))
	go func() { _ = session.Run(ctx) }()

	theirs.Inject(textEnv("msg-1", them, at(10), "a"))
	select {
	case n := <-changes:
		assert.Equal(t, 1, n)
	case <-time.After(5 * time.Second):
		t.Fatal("change listener never fired")
	}

	// A duplicate does not mutate the store, so no notification.
	theirs.Inject(textEnv("msg-1", them, at(10), "a"))
	theirs.Inject(textEnv("msg-2", them, at(20), "b"))
	select {
	case n := <-changes:
		assert.Equal(t, 2, n, "duplicate should not have produced a change")
	case <-time.After(5 * time.Second):
		t.Fatal("change listener never fired")
	}
}
