package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"modeltrain/internal/apperrors"
	"modeltrain/internal/queue"
	"modeltrain/internal/testutil"
)

type fakeSub struct {
	msgs         chan *nats.Msg
	recvErr      chan error
	unsubscribed atomic.Bool
}

func (s *fakeSub) NextMsg(ctx context.Context) (*nats.Msg, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-s.recvErr:
		return nil, err
	case msg := <-s.msgs:
		return msg, nil
	}
}

func (s *fakeSub) Unsubscribe() error {
	s.unsubscribed.Store(true)
	return nil
}

type fakeSubscriber struct {
	mu      sync.Mutex
	subject string
	sub     *fakeSub
	err     error
}

func (f *fakeSubscriber) SubscribeSync(subject string) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.subject = subject
	f.sub = &fakeSub{msgs: make(chan *nats.Msg, 16), recvErr: make(chan error, 1)}
	return f.sub, nil
}

func (f *fakeSubscriber) active(t *testing.T) *fakeSub {
	t.Helper()
	testutil.MustWaitFor(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.sub != nil
	}, testutil.WithTimeout(2*time.Second), testutil.WithInterval(5*time.Millisecond))

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sub
}

func (f *fakeSubscriber) deliver(t *testing.T, data string) {
	t.Helper()
	f.active(t).msgs <- &nats.Msg{Subject: f.subject, Data: []byte(data)}
}

func TestTriggerConsumer_EnqueuesInOrder(t *testing.T) {
	t.Parallel()

	sub := &fakeSubscriber{}
	q := queue.New(8)
	c := NewTriggerConsumer(sub, q, "train", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	for i := range 3 {
		sub.deliver(t, fmt.Sprintf("m%d", i))
	}
	testutil.MustWaitFor(t, func() bool { return q.Len() == 3 },
		testutil.WithTimeout(2*time.Second), testutil.WithInterval(5*time.Millisecond))

	for i := range 3 {
		tr, err := q.Dequeue(context.Background())
		if err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
		if string(tr.Payload) != fmt.Sprintf("m%d", i) {
			t.Errorf("Expected m%d, got %q", i, tr.Payload)
		}
		if tr.Source != queue.SourceBus {
			t.Errorf("Expected bus source, got %q", tr.Source)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if sub.subject != "train" {
		t.Errorf("Expected subscription to 'train', got %q", sub.subject)
	}
	if !sub.sub.unsubscribed.Load() {
		t.Error("Expected unsubscribe on shutdown")
	}
}

func TestTriggerConsumer_BlocksWhenQueueFull(t *testing.T) {
	t.Parallel()

	sub := &fakeSubscriber{}
	q := queue.New(1)
	c := NewTriggerConsumer(sub, q, "train", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	sub.deliver(t, "first")
	sub.deliver(t, "second")

	testutil.MustWaitFor(t, func() bool { return q.Len() == 1 },
		testutil.WithTimeout(2*time.Second), testutil.WithInterval(5*time.Millisecond))

	first, err := q.Dequeue(context.Background())
	if err != nil || string(first.Payload) != "first" {
		t.Fatalf("Expected first, got %q (err=%v)", first.Payload, err)
	}

	second, err := q.Dequeue(context.Background())
	if err != nil || string(second.Payload) != "second" {
		t.Fatalf("Expected second to be delivered after room freed, got %q (err=%v)", second.Payload, err)
	}
}

func TestTriggerConsumer_SubscribeError(t *testing.T) {
	t.Parallel()

	boom := errors.New("no connection")
	c := NewTriggerConsumer(&fakeSubscriber{err: boom}, queue.New(1), "train", nil)

	if err := c.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Expected subscribe error, got %v", err)
	}
}

func TestTriggerConsumer_ReceiveError(t *testing.T) {
	t.Parallel()

	sub := &fakeSubscriber{}
	c := NewTriggerConsumer(sub, queue.New(1), "train", nil)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	sub.active(t).recvErr <- nats.ErrConnectionClosed

	select {
	case err := <-done:
		if !errors.Is(err, nats.ErrConnectionClosed) {
			t.Errorf("Expected receive error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after receive error")
	}
}

type fakeRaw struct {
	subject string
	data    []byte
	err     error
}

func (f *fakeRaw) Publish(_ context.Context, subject string, data []byte) error {
	f.subject = subject
	f.data = data
	return f.err
}

func TestPublisher(t *testing.T) {
	t.Parallel()

	raw := &fakeRaw{}
	p := NewPublisher(raw, nil)

	if err := p.Publish(context.Background(), "model_ready", []byte(`{}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if raw.subject != "model_ready" || string(raw.data) != "{}" {
		t.Errorf("Unexpected publish %q %q", raw.subject, raw.data)
	}

	raw.err = nats.ErrConnectionClosed
	err := p.Publish(context.Background(), "model_ready", nil)
	if !errors.Is(err, apperrors.ErrPublish) {
		t.Errorf("Expected publish error, got %v", err)
	}
	if !errors.Is(err, nats.ErrConnectionClosed) {
		t.Errorf("Expected cause to be preserved, got %v", err)
	}
}
