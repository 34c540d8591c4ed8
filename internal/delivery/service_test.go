package delivery

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/mattjoyce/herald/internal/auth"
	"github.com/mattjoyce/herald/internal/events"
)

// mockStore is a mock MessageInserter for testing.
type mockStore struct {
	insertFn func(ctx context.Context, sender, stream, topic, body string) (string, error)
	calls    int
}

func (m *mockStore) Insert(ctx context.Context, sender, stream, topic, body string) (string, error) {
	m.calls++
	if m.insertFn != nil {
		return m.insertFn(ctx, sender, stream, topic, body)
	}
	return "msg-id", nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDeliver_Success(t *testing.T) {
	hub := events.NewHub(10)
	store := &mockStore{
		insertFn: func(ctx context.Context, sender, stream, topic, body string) (string, error) {
			if sender != "azure-bot" || stream != "builds" || topic != "coverage" {
				t.Errorf("unexpected insert args: %s %s %s", sender, stream, topic)
			}
			if body != "hello" {
				t.Errorf("body = %q", body)
			}
			return "msg-42", nil
		},
	}
	svc := New(Config{RatePerMinute: 60, Burst: 10}, store, hub, quietLogger())

	ch, cancel := hub.Subscribe()
	defer cancel()

	receipt, err := svc.Deliver(context.Background(), auth.Bot{Name: "azure-bot", Stream: "builds"}, "coverage", "hello")
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if receipt.MessageID != "msg-42" || receipt.Stream != "builds" || receipt.Topic != "coverage" {
		t.Errorf("receipt = %+v", receipt)
	}

	select {
	case ev := <-ch:
		if ev.Type != events.TypeMessageDelivered {
			t.Errorf("event type = %q", ev.Type)
		}
		p, err := events.DecodePayload[events.MessageDelivered](ev)
		if err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if p.MessageID != "msg-42" || p.Sender != "azure-bot" || p.Stream != "builds" || p.Topic != "coverage" {
			t.Errorf("payload = %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("expected message.delivered event")
	}
}

func TestDeliver_NoDestination(t *testing.T) {
	store := &mockStore{}
	svc := New(Config{}, store, events.NewHub(10), quietLogger())

	_, err := svc.Deliver(context.Background(), auth.Bot{Name: "azure-bot"}, "coverage", "hello")
	if !errors.Is(err, ErrNoDestination) {
		t.Fatalf("err = %v, want ErrNoDestination", err)
	}
	if store.calls != 0 {
		t.Error("store should not be touched without a destination")
	}
}

func TestDeliver_EmptyTopic(t *testing.T) {
	svc := New(Config{}, &mockStore{}, events.NewHub(10), quietLogger())

	if _, err := svc.Deliver(context.Background(), auth.Bot{Name: "b", Stream: "s"}, "", "hello"); err == nil {
		t.Fatal("expected error for empty topic")
	}
}

func TestDeliver_RateLimited(t *testing.T) {
	hub := events.NewHub(10)
	store := &mockStore{}
	// 1 msg/min with burst 1: second call inside the window must be rejected.
	svc := New(Config{RatePerMinute: 1, Burst: 1}, store, hub, quietLogger())
	bot := auth.Bot{Name: "azure-bot", Stream: "builds"}

	if _, err := svc.Deliver(context.Background(), bot, "coverage", "one"); err != nil {
		t.Fatalf("first Deliver: %v", err)
	}

	_, err := svc.Deliver(context.Background(), bot, "coverage", "two")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1 (rejected delivery must not persist)", store.calls)
	}
}

func TestDeliver_RateLimitIsPerSender(t *testing.T) {
	store := &mockStore{}
	svc := New(Config{RatePerMinute: 1, Burst: 1}, store, events.NewHub(10), quietLogger())

	if _, err := svc.Deliver(context.Background(), auth.Bot{Name: "bot-a", Stream: "s"}, "t", "x"); err != nil {
		t.Fatalf("bot-a: %v", err)
	}
	// A different sender has its own bucket.
	if _, err := svc.Deliver(context.Background(), auth.Bot{Name: "bot-b", Stream: "s"}, "t", "x"); err != nil {
		t.Fatalf("bot-b: %v", err)
	}
}

func TestDeliver_StoreFailurePropagates(t *testing.T) {
	store := &mockStore{
		insertFn: func(ctx context.Context, sender, stream, topic, body string) (string, error) {
			return "", errors.New("disk full")
		},
	}
	svc := New(Config{}, store, events.NewHub(10), quietLogger())

	_, err := svc.Deliver(context.Background(), auth.Bot{Name: "b", Stream: "s"}, "t", "x")
	if err == nil {
		t.Fatal("expected store error to propagate")
	}
}

func TestDeliver_NoDeduplication(t *testing.T) {
	store := &mockStore{}
	svc := New(Config{RatePerMinute: 60, Burst: 10}, store, events.NewHub(10), quietLogger())
	bot := auth.Bot{Name: "azure-bot", Stream: "builds"}

	// Same payload twice produces two separate messages.
	r1, err := svc.Deliver(context.Background(), bot, "coverage", "same body")
	if err != nil {
		t.Fatal(err)
	}
	r2, err := svc.Deliver(context.Background(), bot, "coverage", "same body")
	if err != nil {
		t.Fatal(err)
	}
	if r1 == nil || r2 == nil {
		t.Fatal("expected two receipts")
	}
	if store.calls != 2 {
		t.Errorf("store calls = %d, want 2", store.calls)
	}
}
