// Package bus implements the in-process publish/subscribe channel that
// connects a chat session's network loop and terminal loop: each
// publishes the messages it receives from its side onto the bus, and
// each subscribes to receive the other side's messages, with a
// publisher never receiving its own broadcasts back.
package bus

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/privy-chat/privy/internal/identity"
	"github.com/privy-chat/privy/internal/metrics"
)

// inboxCapacity bounds each subscriber's pending message queue. A
// slow subscriber drops new messages rather than blocking the
// publisher, per the design note that one side of a session must never
// stall the other.
const inboxCapacity = 256

// ErrClosed is returned by Subscribe once the bus has been shut down.
var ErrClosed = errors.New("bus: closed")

// Message is an envelope broadcast over a Bus, tagged with the
// Identifier of the subscriber that published it.
type Message struct {
	Sender  identity.Identifier
	Payload []byte
}

// Bus fans out messages published by one subscriber to every other
// subscriber. It is safe for concurrent use.
type Bus struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	subscribers map[identity.Identifier]chan Message
	closed      bool
}

// New creates an empty Bus. A nil logger is replaced with slog's default
// logger, and a nil metrics with the process-wide default instance.
func New(logger *slog.Logger, m *metrics.Metrics) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Default()
	}
	return &Bus{
		logger:      logger,
		metrics:     m,
		subscribers: make(map[identity.Identifier]chan Message),
	}
}

// Subscriber is a single endpoint's view of a Bus: a channel of
// messages from other subscribers, and a way to publish its own.
type Subscriber struct {
	id  identity.Identifier
	bus *Bus
	ch  chan Message
}

// Subscribe registers a fresh subscriber on the bus. It returns
// ErrClosed if the bus has already been shut down.
func (b *Bus) Subscribe() (*Subscriber, error) {
	id, err := identity.NewIdentifier()
	if err != nil {
		return nil, err
	}

	ch := make(chan Message, inboxCapacity)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	b.subscribers[id] = ch

	return &Subscriber{id: id, bus: b, ch: ch}, nil
}

// C returns the channel of messages published by other subscribers.
// It is closed when the bus shuts down.
func (s *Subscriber) C() <-chan Message {
	return s.ch
}

// Publish broadcasts payload to every other subscriber on the bus.
func (s *Subscriber) Publish(payload []byte) {
	s.bus.broadcast(s.id, payload)
}

// Shutdown tears down the whole bus, not just this subscriber: every
// subscriber's channel is closed, so any one loop ending ends the
// session for every loop sharing the bus.
func (s *Subscriber) Shutdown() {
	s.bus.Shutdown()
}

func (b *Bus) broadcast(sender identity.Identifier, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	msg := Message{Sender: sender, Payload: payload}
	for id, ch := range b.subscribers {
		if id == sender {
			continue
		}
		select {
		case ch <- msg:
			b.metrics.RecordBusDelivered()
		default:
			b.logger.Warn("bus: dropping message, subscriber inbox is full", "subscriber", id.String())
			b.metrics.RecordBusDropped()
		}
	}
}

// Shutdown closes every subscriber's channel and discards the
// subscriber set. It is safe to call more than once.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = make(map[identity.Identifier]chan Message)
}
