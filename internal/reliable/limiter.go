package reliable

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Priority orders the five admission tiers low to high. Ack must be
// the most permissive so ACKs are never starved by lower-priority
// traffic (§4.5).
type Priority int

const (
	PriorityUnreliableLow Priority = iota
	PriorityUnreliable
	PriorityUnreliableHigh
	PriorityReliable
	PriorityAck
)

const numPriorities = 5

// priorityShare is each tier's fraction of the connection's configured
// byte budget; Ack bypasses the budget entirely.
var priorityShare = [numPriorities]float64{
	PriorityUnreliableLow:  0.35,
	PriorityUnreliable:     0.55,
	PriorityUnreliableHigh: 0.75,
	PriorityReliable:       1.0,
}

// minWindow/maxWindow/initialWindow bound send_window_size() (§4.5),
// adjusted by AdjustForAck/AdjustForRetry the way a TCP congestion
// window would be.
const (
	minWindow     = 2
	maxWindow     = 256
	initialWindow = 32
)

// Limiter is the opaque per-connection bandwidth-limiter object (§4.5):
// iter, check, adjust_for_ack, adjust_for_retry, send_window_size.
// Built on golang.org/x/time/rate token buckets, one per priority tier
// below Ack — the teacher has no equivalent (TCP handles its own flow
// control), so this is a fresh ecosystem import per the ambient-stack
// enrichment policy.
type Limiter struct {
	mu       sync.Mutex
	buckets  [numPriorities]*rate.Limiter
	window   int
	capacity int // configured bytes/sec
}

// NewLimiter creates a limiter admitting up to capacity bytes/sec at
// Reliable priority, with lower tiers capped to a smaller share and Ack
// left effectively unrestricted.
func NewLimiter(capacity int) *Limiter {
	l := &Limiter{capacity: capacity, window: initialWindow}
	for p := Priority(0); p < PriorityAck; p++ {
		budget := float64(capacity) * priorityShare[p]
		l.buckets[p] = rate.NewLimiter(rate.Limit(budget), burstFor(budget))
	}
	l.buckets[PriorityAck] = rate.NewLimiter(rate.Inf, 0)
	return l
}

func burstFor(bytesPerSecond float64) int {
	b := int(bytesPerSecond)
	if b < 1 {
		b = 1
	}
	return b
}

// Iter recomputes available budget. golang.org/x/time/rate buckets
// self-pace on every Allow/AllowN call, so this is a no-op retained to
// keep the five-operation contract explicit at call sites.
func (l *Limiter) Iter(now time.Time) {}

// Check deducts bytes from priority's budget if admitted, reporting
// whether the send may proceed now.
func (l *Limiter) Check(bytes int, priority Priority) bool {
	if priority == PriorityAck {
		return true
	}
	return l.buckets[priority].AllowN(time.Now(), bytes)
}

// AdjustForAck credits positive feedback: the send window grows
// (additive increase), mirroring TCP's congestion-avoidance phase.
func (l *Limiter) AdjustForAck() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.window < maxWindow {
		l.window++
	}
}

// AdjustForRetry penalizes a loss: the send window is halved
// (multiplicative decrease), floored at minWindow.
func (l *Limiter) AdjustForRetry() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.window /= 2
	if l.window < minWindow {
		l.window = minWindow
	}
}

// SendWindowSize returns the maximum number of in-flight reliable
// packets currently permitted.
func (l *Limiter) SendWindowSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.window
}
