package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestChannelBusPublishSubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var received atomic.Int64
	var gotPayload atomic.Value

	_, err := b.Subscribe(ctx, "tenant-1", domain.TopicClaimSubmitted, func(ctx context.Context, msg *domain.Message) error {
		gotPayload.Store(string(msg.Payload))
		received.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Publish(ctx, "tenant-1", domain.TopicClaimSubmitted, []byte("claim-1")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, func() bool { return received.Load() == 1 })
	if got := gotPayload.Load(); got != "claim-1" {
		t.Errorf("expected payload claim-1, got %v", got)
	}
}

func TestChannelBusTenantIsolation(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var received atomic.Int64
	_, err := b.Subscribe(ctx, "tenant-1", domain.TopicClaimScored, func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Publish(ctx, "tenant-2", domain.TopicClaimScored, []byte("claim-x")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if received.Load() != 0 {
		t.Errorf("expected no cross-tenant delivery, got %d messages", received.Load())
	}
}

func TestChannelBusMultipleSubscribers(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var first, second atomic.Int64
	b.Subscribe(ctx, "tenant-1", domain.TopicClaimApproved, func(ctx context.Context, msg *domain.Message) error {
		first.Add(1)
		return nil
	})
	b.Subscribe(ctx, "tenant-1", domain.TopicClaimApproved, func(ctx context.Context, msg *domain.Message) error {
		second.Add(1)
		return nil
	})

	if err := b.Publish(ctx, "tenant-1", domain.TopicClaimApproved, []byte("claim-1")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, func() bool { return first.Load() == 1 && second.Load() == 1 })
}

func TestChannelBusUnsubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var received atomic.Int64
	sub, err := b.Subscribe(ctx, "tenant-1", domain.TopicClaimRejected, func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if sub.Topic() != domain.TopicClaimRejected {
		t.Errorf("expected topic %s, got %s", domain.TopicClaimRejected, sub.Topic())
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	b.Publish(ctx, "tenant-1", domain.TopicClaimRejected, []byte("claim-1"))
	time.Sleep(50 * time.Millisecond)
	if received.Load() != 0 {
		t.Errorf("expected no delivery after unsubscribe, got %d", received.Load())
	}
}

func TestChannelBusClosed(t *testing.T) {
	b := NewChannelBus(10)
	ctx := context.Background()

	if err := b.Ping(ctx); err != nil {
		t.Fatalf("Ping before close failed: %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := b.Publish(ctx, "tenant-1", domain.TopicClaimSubmitted, []byte("x")); err == nil {
		t.Error("expected error publishing on closed bus")
	}
	if _, err := b.Subscribe(ctx, "tenant-1", domain.TopicClaimSubmitted, nil); err == nil {
		t.Error("expected error subscribing on closed bus")
	}
	if err := b.Ping(ctx); err == nil {
		t.Error("expected ping error on closed bus")
	}
}

func TestChannelBusRequiresTenant(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	if err := b.Publish(ctx, "", "topic", []byte("x")); err == nil {
		t.Error("expected error for empty tenantID on Publish")
	}
	if _, err := b.Subscribe(ctx, "", "topic", nil); err == nil {
		t.Error("expected error for empty tenantID on Subscribe")
	}
}

func TestNewBusFactory(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer b.Close()

	if _, ok := b.(*ChannelBus); !ok {
		t.Errorf("expected ChannelBus for channel type, got %T", b)
	}

	if _, err := New(domain.EventBusConfig{Type: "bogus"}); err == nil {
		t.Error("expected error for unsupported bus type")
	}
}
