package reliable

import (
	"time"

	"github.com/subzone/zonecore/internal/wire"
)

// SetSizedIncomingHandler installs fn, which (if set) is called the
// first time a sized transfer announces itself (the first 0x0A chunk, at offset 0, per §6 — there
// is no separate request subtype). It must return the completion
// callback HandleSizedRequest would otherwise take directly; returning
// nil drops the transfer.
func (c *Connection) SetSizedIncomingHandler(fn func(total uint32) func(data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSizedIncoming = fn
}

// SetSyncHandler installs the callback invoked on an incoming ZSync
// request (§6 0x05): fn receives the client's clock value from the
// request and the server's own clock at receipt time, and is expected
// to feed internal/lag's CollectTimeSync. HandleCore always answers
// with a 0x06 response regardless of whether fn is set.
func (c *Connection) SetSyncHandler(fn func(serverTime, clientTime time.Time)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSync = fn
}

// HandleCore parses one [0x00, subtype, ...] datagram already peeled
// off by the network layer's core/game routing and dispatches it to
// the matching reliable-transport operation (§4.5/§6). Grouped
// envelopes (0x0E), nested ones included, are unwrapped by the network layer before
// reaching here — see internal/netio's routeDatagram — since a grouped
// envelope's members may themselves be game packets this connection
// has no business dispatching.
func (c *Connection) HandleCore(data []byte) {
	r := wire.NewReader(data)
	prefix, err := r.ReadByte()
	if err != nil || prefix != CorePrefix {
		return
	}
	subtype, err := r.ReadByte()
	if err != nil {
		return
	}

	switch CoreType(subtype) {
	case CoreReliable:
		seq, err := r.ReadUint32()
		if err != nil {
			return
		}
		payload, err := r.ReadBytes(r.Remaining())
		if err != nil {
			return
		}
		c.HandleReliable(SeqNum(seq), payload)

	case CoreAck:
		seq, err := r.ReadUint32()
		if err != nil {
			return
		}
		c.HandleAck(SeqNum(seq))

	case CoreSyncRequest:
		clientMillis, err := r.ReadUint64()
		if err != nil {
			return
		}
		now := time.Now()
		c.handleSyncRequest(now, time.UnixMilli(int64(clientMillis)))

	case CoreSyncResponse:
		// This core only plays the server role of ZSync; a response
		// datagram arriving here would mean a peer mistook us for a
		// client, so it is dropped.

	case CoreDisconnect:
		c.failConnection()

	case CoreSizedData:
		total, err := r.ReadUint32()
		if err != nil {
			return
		}
		offset, err := r.ReadUint32()
		if err != nil {
			return
		}
		chunk, err := r.ReadBytes(r.Remaining())
		if err != nil {
			return
		}
		if offset == 0 {
			c.beginIncomingIfNeeded(total)
		} else {
			c.mu.Lock()
			mismatch := c.sizedRecv != nil && c.sizedRecv.total != total
			c.mu.Unlock()
			if mismatch {
				c.HandleCancelSized()
				return
			}
		}
		c.HandleSizedData(offset, chunk)

	case CoreCancelSized:
		c.HandleCancelSized()

	case CoreKeyResponse, CoreSmallChunk, CoreSmallChunkEnd, CoreCancelSizedAck, CoreGrouped:
		// CoreKeyResponse only ever flows server->client from
		// HandshakeHandler; CoreSmallChunk/CoreSmallChunkEnd and
		// CoreCancelSizedAck have no driving scenario yet (see
		// DESIGN.md); CoreGrouped is unwrapped upstream.

	default:
		if IsBandwidthFeedback(subtype) {
			// No congestion-feedback consumer wired yet (see DESIGN.md).
		}
	}
}

func (c *Connection) beginIncomingIfNeeded(total uint32) {
	c.mu.Lock()
	active := c.sizedRecv != nil
	fn := c.onSizedIncoming
	c.mu.Unlock()
	if active || fn == nil {
		return
	}
	onComplete := fn(total)
	if onComplete == nil {
		return
	}
	c.HandleSizedRequest(total, onComplete)
}

func (c *Connection) handleSyncRequest(serverTime, clientTime time.Time) {
	c.mu.Lock()
	fn := c.onSync
	c.mu.Unlock()
	if fn != nil {
		fn(serverTime, clientTime)
	}

	w := wire.NewWriter(18)
	w.WriteByte(CorePrefix)
	w.WriteByte(byte(CoreSyncResponse))
	w.WriteUint64(uint64(clientTime.UnixMilli()))
	w.WriteUint64(uint64(serverTime.UnixMilli()))
	buf := w.Bytes()
	c.limiter.Check(len(buf), PriorityReliable)
	c.send(buf)
}
