package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/privy-chat/privy/internal/netio"
)

func TestWrapDisabledPassesThrough(t *testing.T) {
	ln, err := netio.ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenTCP() error = %v", err)
	}
	defer ln.Close()

	wrapped := Wrap(ln, 0, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := wrapped.Accept(ctx); err != context.DeadlineExceeded {
		t.Errorf("Accept() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestWrapZeroBurstStillAccepts(t *testing.T) {
	ln, err := netio.ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenTCP() error = %v", err)
	}
	defer ln.Close()

	// A burst of 0 is raised to 1, so the first Accept gets a token at
	// once and then blocks in the wrapped listener until the deadline,
	// instead of being refused by the limiter.
	wrapped := Wrap(ln, 1, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = wrapped.Accept(ctx)
	elapsed := time.Since(start)

	if err != context.DeadlineExceeded {
		t.Fatalf("Accept() error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed < 15*time.Millisecond {
		t.Errorf("Accept() returned after %v, expected it to block in the wrapped listener until the deadline", elapsed)
	}
}
