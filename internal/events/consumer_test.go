package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/segmentio/kafka-go"
	"gotest.tools/v3/assert"
)

// fakeReader replays queued messages, then reports io.EOF like a closed reader
type fakeReader struct {
	mu       sync.Mutex
	messages []kafka.Message
	errs     []error
	closed   bool
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return kafka.Message{}, err
	}
	if len(r.messages) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.messages[0]
	r.messages = r.messages[1:]
	return m, nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type recordingTarget struct {
	events []domain.AuthEvent
	err    error
}

func (t *recordingTarget) HandleAuthEvent(_ context.Context, ev domain.AuthEvent) error {
	t.events = append(t.events, ev)
	return t.err
}

func message(t *testing.T, topic, eventType string, payload any) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(payload)
	assert.NilError(t, err)
	return kafka.Message{
		Topic:   topic,
		Value:   raw,
		Headers: []kafka.Header{{Key: EventTypeHeader, Value: []byte(eventType)}},
	}
}

func TestConsumer_DispatchesByEventType(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		message(t, AuthTopic, "login", AuthPayload{SessionID: "sess-1", UserID: "u1"}),
		message(t, AuthTopic, "logout", AuthPayload{SessionID: "sess-1"}),
	}}
	target := &recordingTarget{}

	c := NewConsumer(reader)
	c.Handle("login", AuthHandler(domain.AuthLogin, "sess-1", target))
	c.Handle("logout", AuthHandler(domain.AuthLogout, "sess-1", target))
	c.Run(context.Background())

	assert.Equal(t, len(target.events), 2)
	assert.DeepEqual(t, target.events[0], domain.AuthEvent{Kind: domain.AuthLogin, SessionID: "sess-1", UserID: "u1"})
	assert.Equal(t, target.events[1].Kind, domain.AuthLogout)
}

func TestConsumer_SkipsOtherSessions(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		message(t, AuthTopic, "login", AuthPayload{SessionID: "sess-2", UserID: "u2"}),
	}}
	target := &recordingTarget{}

	c := NewConsumer(reader)
	c.Handle("login", AuthHandler(domain.AuthLogin, "sess-1", target))
	c.Run(context.Background())

	assert.Equal(t, len(target.events), 0)
}

func TestConsumer_SurvivesBadMessagesAndErrors(t *testing.T) {
	bad := kafka.Message{Value: []byte("{not json"), Headers: []kafka.Header{{Key: EventTypeHeader, Value: []byte("login")}}}
	reader := &fakeReader{
		errs: []error{errors.New("broker unavailable")},
		messages: []kafka.Message{
			bad,
			{Value: []byte("{}")}, // no event_type header
			message(t, AuthTopic, "unknown", AuthPayload{SessionID: "sess-1"}),
			message(t, AuthTopic, "login", AuthPayload{SessionID: "sess-1", UserID: "u1"}),
		},
	}
	target := &recordingTarget{err: errors.New("sync failed")}

	c := NewConsumer(reader)
	c.Handle("login", AuthHandler(domain.AuthLogin, "sess-1", target))
	c.Run(context.Background())

	assert.Equal(t, len(target.events), 1)
}

func TestConsumer_StopsOnCancelledContext(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		message(t, AuthTopic, "login", AuthPayload{SessionID: "sess-1", UserID: "u1"}),
	}}
	target := &recordingTarget{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewConsumer(reader)
	c.Handle("login", AuthHandler(domain.AuthLogin, "sess-1", target))
	c.Run(ctx)

	assert.Equal(t, len(target.events), 0)
}

func TestConsumer_Close(t *testing.T) {
	reader := &fakeReader{}
	NewConsumer(reader).Close()
	assert.Assert(t, reader.closed)
}

func TestCheckoutHandler(t *testing.T) {
	var got []CheckoutPayload
	h := CheckoutHandler(func(_ context.Context, p CheckoutPayload) error {
		got = append(got, p)
		return nil
	})

	err := h(context.Background(), message(t, CheckoutTopic, "checkout", CheckoutPayload{CheckoutID: "c1", UserID: "u1"}))
	assert.NilError(t, err)
	assert.Equal(t, len(got), 1)
	assert.Equal(t, got[0].UserID, "u1")

	err = h(context.Background(), message(t, CheckoutTopic, "checkout", CheckoutPayload{CheckoutID: "c2"}))
	assert.ErrorContains(t, err, "missing user_id")

	err = h(context.Background(), kafka.Message{Value: []byte("nope")})
	assert.ErrorContains(t, err, "error parsing message")
}
