// Package ratelimit gates how fast a listener accepts new connections,
// using a token bucket so a burst of connection attempts cannot pin the
// handshake goroutine pool or exhaust file descriptors.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/privy-chat/privy/internal/netio"
)

// Listener wraps a netio.Listener, delaying each Accept until the token
// bucket has a token available.
type Listener struct {
	netio.Listener
	limiter *rate.Limiter
}

// Wrap returns a Listener that accepts at most ratePerSec connections per
// second on average, with a burst of up to burst pending connections.
// A burst below 1 is treated as 1. A non-positive ratePerSec disables
// limiting entirely.
func Wrap(inner netio.Listener, ratePerSec float64, burst int) *Listener {
	if ratePerSec <= 0 {
		ratePerSec = float64(rate.Inf)
	}
	if burst < 1 {
		burst = 1
	}
	return &Listener{
		Listener: inner,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

// Accept waits for a token to become available, then delegates to the
// wrapped Listener.
func (l *Listener) Accept(ctx context.Context) (netio.Stream, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ratelimit: %w", err)
	}
	return l.Listener.Accept(ctx)
}
