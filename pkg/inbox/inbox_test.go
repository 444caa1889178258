package inbox

import (
	"context"
	"sync"
	"time"

	"github.com/lrhodin/floatinbox/pkg/attachcodec"
	"github.com/lrhodin/floatinbox/pkg/courier"
)

// Shared test fixtures: a send-recording conversation, a canned attachment
// loader, and envelope builders.

type sentCall struct {
	Content []byte
	Opts    courier.SendOptions
}

type recordingConv struct {
	mu       sync.Mutex
	peer     string
	sent     []sentCall
	failWith error
}

var _ courier.Conversation = (*recordingConv)(nil)

func (c *recordingConv) PeerAddress() string {
	if c.peer == "" {
		return "mailto:peer@example.com"
	}
	return c.peer
}

func (c *recordingConv) Messages(context.Context) ([]courier.Envelope, error) {
	return nil, nil
}

func (c *recordingConv) StreamMessages(ctx context.Context) (<-chan courier.Envelope, error) {
	ch := make(chan courier.Envelope)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (c *recordingConv) Send(_ context.Context, content []byte, opts courier.SendOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return c.failWith
	}
	c.sent = append(c.sent, sentCall{Content: append([]byte(nil), content...), Opts: opts})
	return nil
}

func (c *recordingConv) sentCalls() []sentCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentCall(nil), c.sent...)
}

func (c *recordingConv) sentWithType(ct courier.ContentTypeID) []sentCall {
	var out []sentCall
	for _, call := range c.sentCalls() {
		if call.Opts.ContentType.SameAs(ct) {
			out = append(out, call)
		}
	}
	return out
}

type fakeDirectory struct {
	mu    sync.Mutex
	convs map[string]*recordingConv
}

var _ courier.Directory = (*fakeDirectory)(nil)

func (d *fakeDirectory) NewConversation(_ context.Context, peer string) (courier.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.convs == nil {
		d.convs = make(map[string]*recordingConv)
	}
	conv, ok := d.convs[peer]
	if !ok {
		conv = &recordingConv{peer: peer}
		d.convs[peer] = conv
	}
	return conv, nil
}

type fakeLoader struct {
	mu    sync.Mutex
	att   *attachcodec.Attachment
	err   error
	calls int
	block chan struct{}
}

var _ AttachmentLoader = (*fakeLoader)(nil)

func (l *fakeLoader) Load(context.Context, *courier.RemoteAttachmentPayload) (*attachcodec.Attachment, error) {
	l.mu.Lock()
	l.calls++
	block := l.block
	l.mu.Unlock()
	if block != nil {
		<-block
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.att, nil
}

func (l *fakeLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func at(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func textEnv(id, sender string, sentAt time.Time, text string) courier.Envelope {
	return courier.Envelope{
		ID:          id,
		Sender:      sender,
		SentAt:      sentAt,
		ContentType: courier.ContentTypeText,
		Content:     []byte(text),
	}
}

func replyEnv(id, sender string, sentAt time.Time, reference, text string) courier.Envelope {
	content, _ := courier.MarshalPayload(&courier.ReplyPayload{Reference: reference, Content: text})
	return courier.Envelope{
		ID:          id,
		Sender:      sender,
		SentAt:      sentAt,
		ContentType: courier.ContentTypeReply,
		Content:     content,
	}
}

func reactionEnv(id, reference, emoji, action string) courier.Envelope {
	content, _ := courier.MarshalPayload(&courier.ReactionPayload{
		Reference: reference,
		Action:    action,
		Content:   emoji,
		Schema:    courier.ReactionSchemaUnicode,
	})
	return courier.Envelope{
		ID:          id,
		Sender:      "mailto:peer@example.com",
		SentAt:      time.Now().UTC(),
		ContentType: courier.ContentTypeReaction,
		Content:     content,
	}
}

func receiptEnv(id string, sentAt time.Time) courier.Envelope {
	return courier.Envelope{
		ID:          id,
		Sender:      "mailto:peer@example.com",
		SentAt:      sentAt,
		ContentType: courier.ContentTypeReadReceipt,
	}
}

func attachEnv(id, sender string, sentAt time.Time, ptr courier.RemoteAttachmentPayload) courier.Envelope {
	content, _ := courier.MarshalPayload(&ptr)
	return courier.Envelope{
		ID:          id,
		Sender:      sender,
		SentAt:      sentAt,
		ContentType: courier.ContentTypeRemoteAttachment,
		Content:     content,
		Fallback:    "Attachment: " + ptr.Filename,
	}
}
