package bus

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/privy-chat/privy/internal/metrics"
)

func testMetrics(t *testing.T) *metrics.Metrics {
	t.Helper()
	return metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
}

func TestBroadcastDeliversToOtherSubscribers(t *testing.T) {
	b := New(nil, testMetrics(t))

	network, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	terminal, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	terminal.Publish([]byte("hello from terminal"))

	select {
	case msg := <-network.C():
		if !bytes.Equal(msg.Payload, []byte("hello from terminal")) {
			t.Errorf("payload = %q, want %q", msg.Payload, "hello from terminal")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast delivery")
	}
}

func TestBroadcastSuppressesSelf(t *testing.T) {
	b := New(nil, testMetrics(t))

	sub, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	sub.Publish([]byte("echo"))

	select {
	case msg := <-sub.C():
		t.Fatalf("subscriber received its own broadcast: %+v", msg)
	case <-time.After(50 * time.Millisecond):
		// expected: nothing delivered back to the publisher
	}
}

func TestBroadcastPreservesOrderPerPublisher(t *testing.T) {
	b := New(nil, testMetrics(t))

	publisher, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	subscriber, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	want := []string{"one", "two", "three"}
	for _, msg := range want {
		publisher.Publish([]byte(msg))
	}

	for _, expected := range want {
		select {
		case msg := <-subscriber.C():
			if string(msg.Payload) != expected {
				t.Errorf("received %q, want %q", msg.Payload, expected)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %q", expected)
		}
	}
}

func TestShutdownClosesSubscriberChannels(t *testing.T) {
	b := New(nil, testMetrics(t))

	sub, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	b.Shutdown()

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Error("subscriber channel yielded a message after shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber channel was not closed by Shutdown()")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	b := New(nil, testMetrics(t))
	if _, err := b.Subscribe(); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	b.Shutdown()
	b.Shutdown() // must not panic on double-close
}

func TestBroadcastAfterShutdownIsNoop(t *testing.T) {
	b := New(nil, testMetrics(t))

	sub, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	other, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	b.Shutdown()
	other.Publish([]byte("too late"))

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Error("received a message published after shutdown")
		}
	case <-time.After(50 * time.Millisecond):
		t.Fatal("subscriber channel should already be closed")
	}
}

func TestFullInboxDropsRatherThanBlocks(t *testing.T) {
	b := New(nil, testMetrics(t))

	publisher, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if _, err := b.Subscribe(); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < inboxCapacity+10; i++ {
			publisher.Publish([]byte("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish() blocked instead of dropping once the inbox filled")
	}
}

func TestBroadcastRecordsDeliveredAndDropped(t *testing.T) {
	m := testMetrics(t)
	b := New(nil, m)

	publisher, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	subscriber, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	publisher.Publish([]byte("delivered"))
	<-subscriber.C()
	if got := testutil.ToFloat64(m.BusMessagesDelivered); got != 1 {
		t.Errorf("BusMessagesDelivered = %v, want 1", got)
	}

	for i := 0; i < inboxCapacity+1; i++ {
		publisher.Publish([]byte("x"))
	}
	if got := testutil.ToFloat64(m.BusMessagesDropped); got == 0 {
		t.Errorf("BusMessagesDropped = %v, want at least 1 once the inbox filled", got)
	}
}
