package txservice

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// pendingPayout is one FIFO entry: a transaction whose payout failed the
// inventory check (or a later build/sign/broadcast step) and is waiting
// for the sweeper to retry it.
type pendingPayout struct {
	transactionID string
	attempts      int
	lastAttempt   time.Time
}

// pendingQueue is the in-memory retry FIFO: a transaction appears at most
// once, enqueue appends to the tail, the sweeper drains head-first and
// re-appends still-blocked entries. The mutex is held only across the
// slice operations themselves, never across the network/DB calls the
// sweeper performs between draining and re-enqueuing.
type pendingQueue struct {
	mu      sync.Mutex
	items   []pendingPayout
	present map[string]bool
	depth   prometheus.Gauge
}

func newPendingQueue() *pendingQueue {
	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dealer",
		Subsystem: "txservice",
		Name:      "pending_payouts",
		Help:      "Number of payouts queued for retry after an inventory shortfall.",
	})
	_ = prometheus.Register(depth)
	return &pendingQueue{present: make(map[string]bool), depth: depth}
}

// enqueue appends transactionID to the tail unless it is already queued.
func (q *pendingQueue) enqueue(transactionID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.present[transactionID] {
		return
	}
	q.present[transactionID] = true
	q.items = append(q.items, pendingPayout{transactionID: transactionID, lastAttempt: time.Now()})
	q.depth.Set(float64(len(q.items)))
}

// drain empties the queue into a worklist for the sweeper to process
// without holding the lock during I/O.
func (q *pendingQueue) drain() []pendingPayout {
	q.mu.Lock()
	defer q.mu.Unlock()
	worklist := q.items
	q.items = nil
	for _, p := range worklist {
		delete(q.present, p.transactionID)
	}
	q.depth.Set(0)
	return worklist
}

// requeue re-appends an entry at the tail with attempts incremented, unless
// the transaction was enqueued again while the sweeper held it.
func (q *pendingQueue) requeue(p pendingPayout) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.present[p.transactionID] {
		return
	}
	p.attempts++
	p.lastAttempt = time.Now()
	q.present[p.transactionID] = true
	q.items = append(q.items, p)
	q.depth.Set(float64(len(q.items)))
}

func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
