package reliable

import (
	"sync"
	"time"

	"github.com/subzone/zonecore/internal/wire"
)

// SeqNum is a reliable sequence number (§3: s2cn/c2sn).
type SeqNum uint32

const (
	defaultRTO    = 300 * time.Millisecond
	maxRTO        = 4 * time.Second
	defaultRetryLimit = 12
	defaultMaxReorder = 256
)

type pendingEntry struct {
	seqnum     SeqNum
	buffer     []byte
	lastSentAt time.Time
	retries    int
	sent       bool
	onComplete func(success bool)
}

// Connection is the per-player reliable-UDP state (§3): pending_out,
// reorder_buffer, sized_send/sized_recv, and the bandwidth limiter,
// bound together by the reliable send/receive logic of §4.5.
type Connection struct {
	mu sync.Mutex

	s2cn SeqNum
	c2sn SeqNum

	pendingOut []*pendingEntry
	reorderBuf map[SeqNum][]byte
	maxReorder int

	limiter    *Limiter
	rto        time.Duration
	retryLimit int
	relDups    int64

	sizedSend *sizedSendState
	sizedRecv *sizedRecvState

	onSizedIncoming func(total uint32) func(data []byte)
	onSync          func(serverTime, clientTime time.Time)

	// send writes one framed packet to the network; deliver hands a
	// fully-reassembled application payload up to the connection's
	// packet dispatch table.
	send    func(buf []byte)
	deliver func(payload []byte)

	// disconnect is invoked at most once, when retries are exhausted,
	// the limiter's window fills, an early packet finds the reorder
	// buffer full, or the peer sends a disconnect (0x07): the caller is
	// expected to transition the player to LeavingZone on the mainloop.
	disconnect     func()
	disconnectOnce bool

	closed bool
}

// NewConnection creates reliable-transport state for one player
// connection. send and deliver must be non-nil; disconnect may be nil.
func NewConnection(limiter *Limiter, send func([]byte), deliver func([]byte), disconnect func()) *Connection {
	return &Connection{
		reorderBuf: make(map[SeqNum][]byte),
		maxReorder: defaultMaxReorder,
		limiter:    limiter,
		rto:        defaultRTO,
		retryLimit: defaultRetryLimit,
		send:       send,
		deliver:    deliver,
		disconnect: disconnect,
	}
}

// SendReliable queues payload for reliable, in-order delivery. onComplete
// (optional) fires exactly once: success=true iff an ACK arrives before
// the connection is closed or disconnected (invariant #5).
func (c *Connection) SendReliable(payload []byte, onComplete func(success bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		if onComplete != nil {
			onComplete(false)
		}
		return
	}

	seq := c.s2cn
	c.s2cn++

	w := wire.NewWriter(ReliableHeaderSize + len(payload))
	w.WriteByte(CorePrefix)
	w.WriteByte(byte(CoreReliable))
	w.WriteUint32(uint32(seq))
	w.WriteBytes(payload)
	buf := w.Bytes()

	c.pendingOut = append(c.pendingOut, &pendingEntry{
		seqnum:     seq,
		buffer:     buf,
		onComplete: onComplete,
	})
}

// Pump runs one transmit cycle: retransmits or first-sends every
// pending reliable entry the bandwidth limiter admits, in seqnum order
// (pending_out is never reordered by retransmission). First sends are
// additionally capped at the limiter's current send_window_size() —
// already-sent entries awaiting an ACK count against that cap, fresh
// entries do not start until a slot frees up. If the backlog of
// unacked entries has grown past the window entirely, the window has
// filled and the connection is flagged for disconnection, the same
// fate as exhausting the retry limit (§4.5).
func (c *Connection) Pump(now time.Time) {
	c.mu.Lock()
	entries := append([]*pendingEntry(nil), c.pendingOut...)
	window := c.limiter.SendWindowSize()
	c.mu.Unlock()

	if len(entries) > window {
		c.failConnection()
		return
	}

	inFlight := 0
	for _, e := range entries {
		if e.sent {
			inFlight++
		}
	}

	for _, e := range entries {
		due := !e.sent || now.Sub(e.lastSentAt) > c.backoff(e.retries)
		if !due {
			continue
		}
		if !e.sent && inFlight >= window {
			continue
		}
		if !c.limiter.Check(len(e.buffer), PriorityReliable) {
			continue
		}

		if e.sent {
			e.retries++
			c.limiter.AdjustForRetry()
			if e.retries > c.retryLimit {
				c.failConnection()
				return
			}
		} else {
			inFlight++
		}
		e.sent = true
		e.lastSentAt = now
		c.send(e.buffer)
	}
}

func (c *Connection) backoff(retries int) time.Duration {
	d := c.rto
	for i := 0; i < retries; i++ {
		d *= 2
		if d > maxRTO {
			return maxRTO
		}
	}
	return d
}

// HandleAck processes an ACK for seqnum: removes the matching pending
// entry and fires its completion callback with success=true. While an
// earlier seqnum is still pending, the callback is chained behind that
// entry's own, so completion callbacks fire in seqnum order (E1). An ACK
// for a seqnum no longer in pending_out (already acked, or never sent)
// is a no-op other than the duplicate accounting callers may layer on
// top — it changes no state and does not re-fire any callback (E2).
func (c *Connection) HandleAck(seqnum SeqNum) {
	c.mu.Lock()
	var entry *pendingEntry
	var fire func(bool)
	for i, e := range c.pendingOut {
		if e.seqnum == seqnum {
			entry = e
			fire = e.onComplete
			c.pendingOut = append(c.pendingOut[:i:i], c.pendingOut[i+1:]...)
			if i > 0 && fire != nil {
				prev := c.pendingOut[i-1]
				prevFire, acked := prev.onComplete, fire
				prev.onComplete = func(success bool) {
					if prevFire != nil {
						prevFire(success)
					}
					acked(true)
				}
				fire = nil
			}
			break
		}
	}
	c.mu.Unlock()

	if entry == nil {
		return
	}
	c.limiter.AdjustForAck()
	if fire != nil {
		fire(true)
	}
}

// HandleReliable processes an incoming reliable payload at seqnum.
// In-order packets are delivered immediately, then the reorder buffer
// is drained of any now-contiguous successors; early packets are
// buffered; late (duplicate) packets are discarded after being
// counted. An early packet that finds the reorder buffer full is not
// acknowledged and closes the connection instead. Every other received
// reliable seqnum is acknowledged, regardless of ordering, at Ack
// priority (which must admit eagerly).
func (c *Connection) HandleReliable(seqnum SeqNum, payload []byte) {
	c.mu.Lock()

	switch {
	case seqnum == c.c2sn:
		c.c2sn++
		toDeliver := [][]byte{payload}
		for {
			next, ok := c.reorderBuf[c.c2sn]
			if !ok {
				break
			}
			delete(c.reorderBuf, c.c2sn)
			toDeliver = append(toDeliver, next)
			c.c2sn++
		}
		c.mu.Unlock()
		for _, p := range toDeliver {
			c.deliver(p)
		}

	case seqnum > c.c2sn:
		if _, held := c.reorderBuf[seqnum]; !held && len(c.reorderBuf) >= c.maxReorder {
			c.mu.Unlock()
			c.failConnection()
			return
		}
		c.reorderBuf[seqnum] = payload
		c.mu.Unlock()

	default: // seqnum < c2sn: duplicate
		c.relDups++
		c.mu.Unlock()
	}

	c.sendAck(seqnum)
}

func (c *Connection) sendAck(seqnum SeqNum) {
	w := wire.NewWriter(AckHeaderSize)
	w.WriteByte(CorePrefix)
	w.WriteByte(byte(CoreAck))
	w.WriteUint32(uint32(seqnum))
	buf := w.Bytes()
	c.limiter.Check(len(buf), PriorityAck)
	c.send(buf)
}

// RelDups returns the running count of duplicate reliable packets
// received, for lag/query reporting.
func (c *Connection) RelDups() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.relDups
}

func (c *Connection) failConnection() {
	if c.disconnect != nil && !c.disconnectOnce {
		c.disconnectOnce = true
		c.disconnect()
	}
	c.Close()
}

// Close flushes every pending reliable callback with success=false
// (a callback of an already-acked later seqnum, chained behind one of
// them by HandleAck, still reports true), discards sized-transfer
// state, and marks the connection closed —
// the reliable-pump side of the cancellation sequence in §4.5. The
// caller is responsible for invoking the encryption void() hook and
// returning buffers to pools afterward.
func (c *Connection) Close() {
	c.mu.Lock()
	entries := c.pendingOut
	c.pendingOut = nil
	c.closed = true
	sendState := c.sizedSend
	recvState := c.sizedRecv
	c.sizedSend = nil
	c.sizedRecv = nil
	c.mu.Unlock()

	for _, e := range entries {
		if e.onComplete != nil {
			e.onComplete(false)
		}
	}
	if sendState != nil && sendState.requestData != nil {
		sendState.requestData(sendState.state, 0, nil)
	}
	if recvState != nil && recvState.onComplete != nil {
		recvState.onComplete(nil)
	}
}
