package reliable

import (
	"github.com/subzone/zonecore/internal/wire"
)

// sizedSendState drives an outgoing sized transfer (§3 sized_send):
// a large payload is split into sized-data chunks framed
// [0x00, 0x0A, total_length_u32le, offset_u32le, chunk...], one chunk
// per PumpSizedSend call. Chunks are written straight to send, gated
// only by the bandwidth limiter at Reliable priority; they do not go
// through pending_out, are not retransmitted, and do not count against
// the send window.
type sizedSendState struct {
	total     uint32
	offset    uint32
	chunkSize int

	// requestData pulls the next chunk: implementations read from a
	// file or in-memory buffer and return the byte count written. The
	// transfer ends once offset reaches total; a return of 0 sends
	// nothing and leaves offset unchanged. requestData is also
	// invoked once with (state, 0, nil) on cancellation so the source
	// can release resources.
	requestData func(state any, offset uint32, chunk []byte) int
	state       any

	onComplete func(success bool)
	cancelled  bool
}

const defaultSizedChunk = 480

// BeginSizedSend starts a sized transfer of totalLength bytes.
// requestData(state, offset, buf) must fill buf (sized len(buf) or
// less at EOF) and return the number of bytes written. The caller
// drives the transfer by repeatedly calling Connection.PumpSizedSend
// until it reports done. There is no separate request subtype (§6):
// the first 0x0A chunk, at offset 0, both announces the transfer's
// total length and carries its first bytes.
func (c *Connection) BeginSizedSend(totalLength uint32, requestData func(state any, offset uint32, chunk []byte) int, state any, onComplete func(success bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sizedSend = &sizedSendState{
		total:       totalLength,
		chunkSize:   defaultSizedChunk,
		requestData: requestData,
		state:       state,
		onComplete:  onComplete,
	}
}

// PumpSizedSend emits the next chunk of an in-progress sized send, if
// any, subject to the bandwidth limiter at Reliable priority. It
// reports true once the transfer has sent its final chunk.
func (c *Connection) PumpSizedSend() (done bool) {
	c.mu.Lock()
	s := c.sizedSend
	if s == nil || s.cancelled {
		c.mu.Unlock()
		return true
	}
	if s.offset >= s.total {
		c.sizedSend = nil
		c.mu.Unlock()
		if s.onComplete != nil {
			s.onComplete(true)
		}
		return true
	}

	remaining := s.total - s.offset
	n := s.chunkSize
	if uint32(n) > remaining {
		n = int(remaining)
	}
	chunk := make([]byte, n)
	written := s.requestData(s.state, s.offset, chunk)
	offset := s.offset
	c.mu.Unlock()

	if written <= 0 {
		return false
	}

	w := wire.NewWriter(SizedDataHeaderSize + written)
	w.WriteByte(CorePrefix)
	w.WriteByte(byte(CoreSizedData))
	w.WriteUint32(s.total)
	w.WriteUint32(offset)
	w.WriteBytes(chunk[:written])
	buf := w.Bytes()

	if !c.limiter.Check(len(buf), PriorityReliable) {
		return false
	}
	c.send(buf)

	c.mu.Lock()
	if c.sizedSend != nil {
		c.sizedSend.offset += uint32(written)
	}
	c.mu.Unlock()
	return false
}

// CancelSizedSend aborts an in-progress outgoing sized transfer,
// emitting [0x00, 0x0B] and firing onComplete(false).
func (c *Connection) CancelSizedSend() {
	c.mu.Lock()
	s := c.sizedSend
	c.sizedSend = nil
	c.mu.Unlock()
	if s == nil {
		return
	}
	s.cancelled = true
	c.send([]byte{CorePrefix, byte(CoreCancelSized)})
	if s.requestData != nil {
		s.requestData(s.state, 0, nil)
	}
	if s.onComplete != nil {
		s.onComplete(false)
	}
}

// sizedRecvState reassembles an incoming sized transfer (§3 sized_recv).
type sizedRecvState struct {
	total  uint32
	buf    []byte
	onComplete func(data []byte)
}

// HandleSizedRequest begins accepting an incoming sized transfer of
// totalLength bytes. onComplete fires once with the full reassembled
// payload, or with nil if the transfer is cancelled or superseded.
func (c *Connection) HandleSizedRequest(totalLength uint32, onComplete func(data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sizedRecv != nil && c.sizedRecv.onComplete != nil {
		c.sizedRecv.onComplete(nil)
	}
	c.sizedRecv = &sizedRecvState{
		total:      totalLength,
		buf:        make([]byte, 0, totalLength),
		onComplete: onComplete,
	}
}

// HandleSizedData appends one chunk at offset to the active incoming
// sized transfer. Out-of-order chunks (offset != len(buf)) are dropped;
// the transfer completes once len(buf) reaches total.
func (c *Connection) HandleSizedData(offset uint32, chunk []byte) {
	c.mu.Lock()
	s := c.sizedRecv
	if s == nil || offset != uint32(len(s.buf)) {
		c.mu.Unlock()
		return
	}
	s.buf = append(s.buf, chunk...)
	complete := uint32(len(s.buf)) >= s.total
	var cb func([]byte)
	var data []byte
	if complete {
		cb = s.onComplete
		data = s.buf
		c.sizedRecv = nil
	}
	c.mu.Unlock()

	if cb != nil {
		cb(data)
	}
}

// HandleCancelSized aborts the in-progress incoming sized transfer, if
// any, firing onComplete(nil).
func (c *Connection) HandleCancelSized() {
	c.mu.Lock()
	s := c.sizedRecv
	c.sizedRecv = nil
	c.mu.Unlock()
	if s != nil && s.onComplete != nil {
		s.onComplete(nil)
	}
}
