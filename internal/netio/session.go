package netio

import (
	"net"
	"sync"
)

// Session is one established raw-network connection: a per-connection
// lock serializing ingress/egress (§4.4), the negotiated encryptor,
// and a hook for core-subtype (0x00-prefixed) payloads, which the
// caller wires to an *reliable.Connection's HandleReliable/HandleAck/
// etc. dispatch without netio importing internal/reliable directly.
type Session struct {
	Addr      *net.UDPAddr
	Encryptor IEncrypt

	mu sync.Mutex

	// OnCore receives every 0x00-prefixed datagram after decryption,
	// still including its [0x00, subtype, ...] header.
	OnCore func(data []byte)

	// Extra is an opaque slot for the owner (player/auth/zone plumbing)
	// to stash its own state against this session without netio needing
	// to know its type.
	Extra any
}

func newSession(addr *net.UDPAddr, enc IEncrypt) *Session {
	return &Session{Addr: addr, Encryptor: enc}
}
