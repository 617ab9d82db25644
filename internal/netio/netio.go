// Package netio implements the Raw UDP Network (§4.4): one UDP socket
// per configured listen endpoint with one receive goroutine per socket
// (Serve), the connection-init handler chain, and the IEncrypt plug-in
// boundary. There is no send goroutine: Listener.Send encrypts and
// writes on the caller's goroutine. The reliable pump is
// reliable.Connection.Pump; neither netio nor the mainloop calls it.
package netio

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/subzone/zonecore/internal/pool"
)

// IEncrypt is the per-connection encryption plug-in (§4.4): decryption
// happens in place on ingress buffers, encryption in place on egress
// buffers. The caller (Listener) guarantees trailing slack bytes for
// cipher padding by sizing receive buffers generously.
type IEncrypt interface {
	Encrypt(data []byte)
	Decrypt(data []byte)
}

// InitHandler participates in the connection-init pipeline (§4.4): an
// ordered list of handlers, registered by encryption modules and the
// peer module, each of which reports whether it handled the datagram.
// The first handler to return true ends processing for that datagram.
type InitHandler interface {
	HandleInit(raddr *net.UDPAddr, data []byte) bool
}

// InitHandlerFunc adapts a plain function to InitHandler.
type InitHandlerFunc func(raddr *net.UDPAddr, data []byte) bool

func (f InitHandlerFunc) HandleInit(raddr *net.UDPAddr, data []byte) bool { return f(raddr, data) }

// PacketHandler processes one fully-decrypted, non-core-subtype
// payload dispatched by packet type byte via AddPacket.
type PacketHandler func(sess *Session, payload []byte)

// Endpoint is one configured listen endpoint (§6 "Ports and listen
// endpoints"): (ip, port, connect_as).
type Endpoint struct {
	IP        string
	Port      int
	ConnectAs string
}

const recvBufferSize = 2048

// Listener owns one UDP socket and its connect-as grouping string.
// Serve runs its receive loop on the calling goroutine; Send writes
// synchronously on its caller's. Per-session ingress/egress is serialized by each
// Session's own lock so retransmits and fresh datagrams never race on
// the same connection's cipher/reliable state.
type Listener struct {
	conn      *net.UDPConn
	connectAs string
	log       *slog.Logger
	bufPool   *pool.BytePool

	mu       sync.RWMutex
	sessions map[string]*Session

	initMu       sync.RWMutex
	initHandlers []InitHandler

	packetMu sync.RWMutex
	packets  map[byte]PacketHandler
}

// NewListener binds conn (already listening) as one raw-network
// endpoint under the given connect-as grouping.
func NewListener(conn *net.UDPConn, connectAs string, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Listener{
		conn:      conn,
		connectAs: connectAs,
		log:       log.With("connect_as", connectAs),
		bufPool:   pool.NewBytePool(recvBufferSize),
		sessions:  make(map[string]*Session),
		packets:   make(map[byte]PacketHandler),
	}
}

// ConnectAs returns this endpoint's population-reporting grouping.
func (l *Listener) ConnectAs() string { return l.connectAs }

// LocalAddr returns the bound socket address.
func (l *Listener) LocalAddr() net.Addr { return l.conn.LocalAddr() }

// RegisterInitHandler appends h to the connection-init pipeline, to be
// tried (in registration order) against any datagram with no matching
// established session.
func (l *Listener) RegisterInitHandler(h InitHandler) {
	l.initMu.Lock()
	defer l.initMu.Unlock()
	l.initHandlers = append(l.initHandlers, h)
}

// AddPacket registers the handler invoked for decrypted payloads whose
// leading type byte is typ and is not the 0x00 core-subtype prefix —
// game-level packet types, per §4.5.
func (l *Listener) AddPacket(typ byte, h PacketHandler) {
	l.packetMu.Lock()
	defer l.packetMu.Unlock()
	l.packets[typ] = h
}

// Accept registers a new session for raddr once a connection-init
// handler has completed its handshake, with encryptor as its IEncrypt
// plug-in (nil permitted: unencrypted, e.g. a chat-only client type).
func (l *Listener) Accept(raddr *net.UDPAddr, encryptor IEncrypt) *Session {
	sess := newSession(raddr, encryptor)

	l.mu.Lock()
	l.sessions[raddr.String()] = sess
	l.mu.Unlock()
	return sess
}

// Remove tears down sess's table entry. Callers are expected to have
// already closed sess's reliable.Connection and released its player
// slot.
func (l *Listener) Remove(sess *Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, sess.Addr.String())
}

func (l *Listener) lookup(addr *net.UDPAddr) (*Session, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.sessions[addr.String()]
	return s, ok
}

// Sessions returns a snapshot of every currently-established session,
// for population sweeps and admin listing.
func (l *Listener) Sessions() []*Session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		out = append(out, s)
	}
	return out
}

// Serve runs the receive loop until ctx is cancelled or the socket
// errors. Every inbound datagram is either routed to its session's
// Dispatch (decrypt + packet-type fan-out) or, for unrecognized
// addresses, walked through the connection-init pipeline.
func (l *Listener) Serve(ctx context.Context, dispatch func(sess *Session, payload []byte)) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		l.conn.Close()
		close(done)
	}()

	for {
		buf := l.bufPool.Get(recvBufferSize)
		n, raddr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-done:
				return nil
			default:
			}
			l.bufPool.Put(buf)
			l.log.Warn("udp read error", "err", err)
			continue
		}
		data := buf[:n]

		sess, ok := l.lookup(raddr)
		if !ok {
			l.runInitPipeline(raddr, data)
			l.bufPool.Put(buf)
			continue
		}

		sess.mu.Lock()
		if sess.Encryptor != nil {
			sess.Encryptor.Decrypt(data)
		}
		sess.mu.Unlock()

		l.routeDatagram(sess, data, dispatch)
		l.bufPool.Put(buf)
	}
}

// coreGroupedType mirrors reliable.CoreGrouped (0x0E) without netio
// importing internal/reliable — see CorePrefixByte in handshake.go for
// the same rationale.
const coreGroupedType = 0x0E

// routeDatagram sends one decrypted datagram to its handler, unwrapping
// a grouped envelope into its constituent sub-packets first: a grouped
// envelope's members may themselves be either core-subtype or
// game-level packets, so the unwrap has to happen here, above both
// dispatch tables, rather than inside internal/reliable.
func (l *Listener) routeDatagram(sess *Session, data []byte, dispatch func(sess *Session, payload []byte)) {
	if len(data) >= 2 && data[0] == 0x00 && data[1] == coreGroupedType {
		for _, sub := range ungroupCore(data[2:]) {
			l.routeDatagram(sess, sub, dispatch)
		}
		return
	}

	if len(data) > 0 && data[0] == 0x00 {
		l.dispatchCore(sess, data)
	} else if dispatch != nil {
		dispatch(sess, data)
	} else if len(data) > 0 {
		l.dispatchGame(sess, data)
	}
}

// ungroupCore splits a grouped envelope's body (everything after the
// [0x00, 0x0E] prefix) back into its constituent sub-packets, mirroring
// reliable.UngroupPacket.
func ungroupCore(body []byte) [][]byte {
	var out [][]byte
	for len(body) > 0 {
		n := int(body[0])
		body = body[1:]
		if n > len(body) {
			break
		}
		out = append(out, body[:n])
		body = body[n:]
	}
	return out
}

func (l *Listener) runInitPipeline(raddr *net.UDPAddr, data []byte) {
	l.initMu.RLock()
	handlers := l.initHandlers
	l.initMu.RUnlock()

	for _, h := range handlers {
		if h.HandleInit(raddr, data) {
			return
		}
	}
	l.log.Debug("dropped unhandled init datagram", "addr", raddr.String())
}

func (l *Listener) dispatchCore(sess *Session, data []byte) {
	if sess.OnCore != nil {
		sess.OnCore(data)
	}
}

func (l *Listener) dispatchGame(sess *Session, data []byte) {
	l.Dispatch(sess, data)
}

// Dispatch routes one already-decrypted, non-core-subtype payload
// through the game-packet table by its leading type byte, the same
// path Serve uses for a freshly-received datagram. Reassembled
// reliable payloads (internal/reliable's Connection.deliver callback)
// use this to re-enter the same table rather than duplicating it.
func (l *Listener) Dispatch(sess *Session, data []byte) {
	if len(data) == 0 {
		return
	}
	l.packetMu.RLock()
	h, ok := l.packets[data[0]]
	l.packetMu.RUnlock()
	if !ok {
		l.log.Debug("no handler for packet type", "type", data[0])
		return
	}
	h(sess, data)
}

// Send writes data to raddr through the socket's single send path,
// encrypting first if sess carries an encryptor. Concurrent sends to
// the same session are serialized by sess's lock.
func (l *Listener) Send(sess *Session, data []byte) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.Encryptor != nil {
		sess.Encryptor.Encrypt(data)
	}
	_, err := l.conn.WriteToUDP(data, sess.Addr)
	return err
}
