package email

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeDelivery struct {
	mu      sync.Mutex
	got     []Message
	block   chan struct{}
	err     error
	started chan struct{}
}

func (f *fakeDelivery) Deliver(ctx context.Context, msg Message) error {
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, msg)
	return f.err
}

func (f *fakeDelivery) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.got...)
}

func TestSenderDeliversQueuedMessages(t *testing.T) {
	logger, _ := test.NewNullLogger()
	d := &fakeDelivery{}
	s := NewSender(d, Config{Workers: 2, Buffer: 8, Timeout: time.Second}, logger)
	for i := 0; i < 5; i++ {
		s.Send("task-assigned", "a@example.com", map[string]string{"taskTitle": "t"})
	}
	s.Close()
	msgs := d.messages()
	if len(msgs) != 5 {
		t.Fatalf("expected 5 deliveries, got %d", len(msgs))
	}
	if msgs[0].Template != "task-assigned" || msgs[0].To != "a@example.com" || msgs[0].Params["taskTitle"] != "t" || msgs[0].EnqueuedAt.IsZero() {
		t.Fatalf("unexpected message %+v", msgs[0])
	}
}

func TestSenderDropsWhenSaturated(t *testing.T) {
	logger, hook := test.NewNullLogger()
	d := &fakeDelivery{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s := NewSender(d, Config{Workers: 1, Buffer: 1, HandoffTimeout: 10 * time.Millisecond}, logger)

	s.Send("t", "first@example.com", nil)
	<-d.started
	s.Send("t", "second@example.com", nil)

	start := time.Now()
	s.Send("t", "third@example.com", nil)
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("send blocked past the handoff timeout")
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Message != "email buffer saturated; dropping" || entry.Data["to"] != "third@example.com" {
		t.Fatalf("expected drop log, got %+v", entry)
	}
	close(d.block)
	s.Close()
	if got := len(d.messages()); got != 2 {
		t.Fatalf("expected 2 deliveries, got %d", got)
	}
}

func TestSenderLogsDeliveryFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	d := &fakeDelivery{err: errors.New("queue down")}
	s := NewSender(d, Config{Workers: 1, Buffer: 1}, logger)
	s.Send("t", "a@example.com", nil)
	s.Close()
	entry := hook.LastEntry()
	if entry == nil || entry.Message != "email delivery failed" {
		t.Fatalf("expected failure log, got %+v", entry)
	}
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	logger, _ := test.NewNullLogger()
	d := &fakeDelivery{}
	s := NewSender(d, Config{Workers: 1, Buffer: 1}, logger)
	s.Close()
	s.Close()
	s.Send("t", "a@example.com", nil)
	if len(d.messages()) != 0 {
		t.Fatalf("closed sender delivered")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("EMAIL_WORKERS", "7")
	t.Setenv("EMAIL_BUFFER", "bad")
	t.Setenv("EMAIL_TIMEOUT", "2s")
	cfg := ConfigFromEnv()
	if cfg.Workers != 7 || cfg.Buffer != 256 || cfg.Timeout != 2*time.Second || cfg.HandoffTimeout != 15*time.Millisecond {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

type fakeQueue struct {
	contents []string
	err      error
}

func (f *fakeQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	if f.err != nil {
		return azqueue.EnqueueMessagesResponse{}, f.err
	}
	f.contents = append(f.contents, content)
	return azqueue.EnqueueMessagesResponse{}, nil
}

func TestQueueClientEncodesMessage(t *testing.T) {
	q := &fakeQueue{}
	c := &QueueClient{queue: q}
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := c.Deliver(context.Background(), Message{Template: "task-moved", To: "a@example.com", Params: map[string]string{"toBoard": "B"}, EnqueuedAt: at}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(q.contents) != 1 {
		t.Fatalf("expected 1 message, got %d", len(q.contents))
	}
	var got Message
	if err := sonic.Unmarshal([]byte(q.contents[0]), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Template != "task-moved" || got.Params["toBoard"] != "B" || !got.EnqueuedAt.Equal(at) {
		t.Fatalf("unexpected payload %+v", got)
	}

	q.err = errors.New("boom")
	if err := c.Deliver(context.Background(), Message{}); err == nil {
		t.Fatal("expected enqueue error")
	}
}
