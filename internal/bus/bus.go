// Package bus provides the dealer's actor messaging primitives: every
// actor owns a bounded mailbox; requests carry a one-shot reply channel
// (or none, for fire-and-forget); the actor's single consumer loop
// processes messages in arrival order and must never block on anything
// but the next message.
//
// No actor reaches into another actor's state. Actors only hold *sender*
// handles to their peers (never the peer object itself), so the dependency
// graph between actors is a forest rather than a cycle: shutdown propagates
// by cancelling the root context, which every mailbox loop selects on.
package bus

import (
	"context"
	"fmt"

	"github.com/moozedealer/dealer/internal/dealererr"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultMailboxSize bounds an actor's mailbox at 512 messages.
const DefaultMailboxSize = 512

// Mailbox is a bounded, single-consumer, multi-producer queue of messages
// for one actor. Producers back-pressure against MailboxFull once the
// queue is at capacity; they never drop a message silently.
type Mailbox[T any] struct {
	name  string
	ch    chan T
	depth prometheus.Gauge
}

// NewMailbox creates a mailbox of the given bound (DefaultMailboxSize if
// size <= 0), registering a depth gauge under the actor's name so operators
// can see backpressure building in Prometheus.
func NewMailbox[T any](name string, size int) *Mailbox[T] {
	if size <= 0 {
		size = DefaultMailboxSize
	}
	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dealer",
		Subsystem: "bus",
		Name:      "mailbox_depth",
		Help:      "Number of messages currently queued in an actor's mailbox.",
		ConstLabels: prometheus.Labels{
			"actor": name,
		},
	})
	// Registration failures (duplicate actor name registered twice, e.g.
	// in tests that construct multiple instances) are not fatal: the
	// gauge still works locally, it just won't be scraped twice.
	_ = prometheus.Register(depth)

	return &Mailbox[T]{
		name:  name,
		ch:    make(chan T, size),
		depth: depth,
	}
}

// Send enqueues msg, blocking until there is room or the context is done.
// A full mailbox is the back-pressure mechanism
// producers are expected to feel.
func (m *Mailbox[T]) Send(ctx context.Context, msg T) error {
	select {
	case m.ch <- msg:
		m.depth.Set(float64(len(m.ch)))
		return nil
	case <-ctx.Done():
		return dealererr.Wrap(dealererr.Communication, "MailboxSendCancelled", ctx.Err())
	}
}

// TrySend enqueues msg without blocking, for fire-and-forget best-effort
// sends (e.g. the replenishment-hint mailbox) where the sender logs and
// waits for the next tick rather than block.
func (m *Mailbox[T]) TrySend(msg T) error {
	select {
	case m.ch <- msg:
		m.depth.Set(float64(len(m.ch)))
		return nil
	default:
		return dealererr.New(dealererr.Communication, "MailboxFull",
			fmt.Sprintf("mailbox %q is full", m.name))
	}
}

// Recv exposes the receive side for the actor's single consumer loop.
func (m *Mailbox[T]) Recv() <-chan T {
	return m.ch
}

// Result is what a one-shot reply channel carries: either a value or an
// error, never both.
type Result[T any] struct {
	Value T
	Err   error
}

// ReplyChan is a one-shot reply channel a request carries so its actor can
// answer exactly the caller that sent it.
type ReplyChan[T any] chan Result[T]

// NewReply allocates a reply channel with buffer 1, so Resolve never blocks
// even if the caller has already given up waiting (e.g. its own context was
// cancelled). This is what makes a dropped receiver benign rather than a
// goroutine leak.
func NewReply[T any]() ReplyChan[T] {
	return make(ReplyChan[T], 1)
}

// Resolve fulfils the reply. Nothing enforces the one-shot contract at
// runtime: a second Resolve before the first result is received blocks,
// since the channel buffers only one result.
func (r ReplyChan[T]) Resolve(v T, err error) {
	r <- Result[T]{Value: v, Err: err}
}

// Wait blocks for the reply or until ctx is done. If ctx expires first,
// this surfaces as Communication rather than the caller's own business
// error: a dropped reply channel is a programming condition, not a
// business one.
func (r ReplyChan[T]) Wait(ctx context.Context) (T, error) {
	select {
	case res := <-r:
		return res.Value, res.Err
	case <-ctx.Done():
		var zero T
		return zero, dealererr.Wrap(dealererr.Communication, "ReplyTimeout", ctx.Err())
	}
}
