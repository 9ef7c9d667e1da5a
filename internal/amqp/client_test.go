package amqp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"

	"github.com/rabbitmq/amqp091-go"
)

type fakePublisher struct {
	err       error
	published []amqp091.Publishing
	keys      []string
}

func (f *fakePublisher) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp091.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

type recordingObserver struct {
	kinds  []string
	failed int
}

func (o *recordingObserver) ObservePublish(kind string, err error) {
	o.kinds = append(o.kinds, kind)
	if err != nil {
		o.failed++
	}
}

type fakeAck struct {
	acked, requeued, dropped int
}

func (a *fakeAck) Ack(uint64, bool) error { a.acked++; return nil }
func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	if requeue {
		a.requeued++
	} else {
		a.dropped++
	}
	return nil
}
func (a *fakeAck) Reject(uint64, bool) error { a.dropped++; return nil }

var may = core.YearMonth{Year: 2025, Month: time.May}

func TestPublishLedgerEvent(t *testing.T) {
	pub := &fakePublisher{}
	obs := &recordingObserver{}
	client := newClient(pub, "ledger", "ledger_events", obs)

	ev := NewLedgerEvent(EventTransactionCreated, 42, may, time.Now())
	if err := client.PublishLedgerEvent(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.published))
	}
	msg := pub.published[0]
	if msg.DeliveryMode != amqp091.Persistent || msg.ContentType != "application/json" || pub.keys[0] != "ledger_events" {
		t.Fatalf("unexpected publishing %+v key=%s", msg, pub.keys[0])
	}
	decoded, err := LedgerEventFromJSON(msg.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.TransactionID != 42 || decoded.Period() != may {
		t.Fatalf("unexpected event %+v", decoded)
	}
	if len(obs.kinds) != 1 || obs.failed != 0 {
		t.Fatalf("observer: %+v", obs)
	}
}

func TestPublishOpensCircuitAfterFailures(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	client := newClient(pub, "ledger", "ledger_events", nil)
	ev := NewLedgerEvent(EventBudgetChanged, 0, may, time.Now())

	for i := 0; i < 5; i++ {
		if err := client.PublishLedgerEvent(context.Background(), ev); err == nil {
			t.Fatalf("attempt %d should fail", i)
		}
	}
	err := client.PublishLedgerEvent(context.Background(), ev)
	if err == nil || !strings.Contains(err.Error(), "circuit breaker is open") {
		t.Fatalf("expected open circuit, got %v", err)
	}
}

func TestPublishRespectsCancelledContext(t *testing.T) {
	client := newClient(&fakePublisher{}, "ledger", "ledger_events", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.PublishLedgerEvent(ctx, LedgerEvent{Kind: EventBudgetChanged}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHandleDelivery(t *testing.T) {
	body, _ := NewLedgerEvent(EventTransactionDeleted, 7, may, time.Now()).ToJSON()

	tests := []struct {
		name       string
		body       []byte
		handlerErr error
		check      func(*fakeAck) bool
	}{
		{"success acks", body, nil, func(a *fakeAck) bool { return a.acked == 1 }},
		{"handler failure requeues", body, errors.New("db locked"), func(a *fakeAck) bool { return a.requeued == 1 }},
		{"rejected event is dropped", body, core.ValidationError("handle event", "bad"), func(a *fakeAck) bool { return a.dropped == 1 && a.requeued == 0 }},
		{"bad json is dropped", []byte(`{"kind":`), nil, func(a *fakeAck) bool { return a.dropped == 1 }},
		{"invalid month is dropped", []byte(`{"kind":"budget.changed","year":2025,"month":13}`), nil, func(a *fakeAck) bool { return a.dropped == 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAck{}
			d := amqp091.Delivery{Acknowledger: ack, Body: tt.body}
			handleDelivery(context.Background(), d, func(context.Context, LedgerEvent) error { return tt.handlerErr })
			if !tt.check(ack) {
				t.Fatalf("unexpected ack state %+v", ack)
			}
		})
	}
}
