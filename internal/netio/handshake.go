package netio

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"

	"github.com/subzone/zonecore/internal/crypto"
)

// connRequestType/keyResponseType are the core subtypes this handler
// claims from the connection-init pipeline (§6: 0x00 0x01 key-response).
// A bare 0x00 0x00 datagram from an address with no established
// session is treated as a connection request carrying the client's
// session id.
const (
	connRequestType = 0x00
	keyResponseType = 0x01
	rollingKeySize  = 16
)

// HandshakeHandler is the default connection-init handler (§4.4):
// claims raw connection-request datagrams, negotiates a per-connection
// rolling-cipher key wrapped in the teacher's Blowfish/XOR/checksum
// envelope, and registers the resulting session with the listener.
type HandshakeHandler struct {
	listener *Listener
	blowfish *crypto.BlowfishCipher
	log      *slog.Logger

	// OnAccepted, if set, runs after a session is registered so callers
	// can wire its OnCore dispatch (to a reliable.Connection) and Extra
	// player-linkage before any further datagrams from raddr arrive.
	OnAccepted func(sess *Session, raddr *net.UDPAddr)
}

// NewHandshakeHandler builds a handshake handler using the default
// static Blowfish handshake key (§4.4/§6).
func NewHandshakeHandler(l *Listener, log *slog.Logger) (*HandshakeHandler, error) {
	bf, err := crypto.NewBlowfishCipher(crypto.DefaultHandshakeKey)
	if err != nil {
		return nil, fmt.Errorf("handshake handler: %w", err)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &HandshakeHandler{listener: l, blowfish: bf, log: log}, nil
}

// HandleInit implements InitHandler.
func (h *HandshakeHandler) HandleInit(raddr *net.UDPAddr, data []byte) bool {
	if len(data) < 6 || data[0] != connRequestType || data[1] != connRequestType {
		return false
	}
	sessionID := binary.LittleEndian.Uint32(data[2:6])

	key := make([]byte, rollingKeySize)
	if _, err := rand.Read(key); err != nil {
		h.log.Error("handshake: generating session key", "err", err)
		return true
	}

	body, err := h.buildKeyResponseBody(sessionID, key)
	if err != nil {
		h.log.Error("handshake: building key-response", "err", err)
		return true
	}

	packet := make([]byte, 2+len(body))
	packet[0] = CorePrefixByte
	packet[1] = keyResponseType
	copy(packet[2:], body)

	cipher := crypto.NewRollingCipher()
	cipher.SetKey(key)

	sess := h.listener.Accept(raddr, cipher)
	if h.OnAccepted != nil {
		h.OnAccepted(sess, raddr)
	}

	// The rolling cipher's documented first-call skip means this send
	// goes out unencrypted, matching the key-response's own Blowfish
	// wrapping being the only protection it needs.
	if err := h.listener.Send(sess, packet); err != nil {
		h.log.Warn("handshake: sending key-response", "err", err, "addr", raddr.String())
		h.listener.Remove(sess)
		return true
	}
	return true
}

// CorePrefixByte mirrors reliable.CorePrefix without importing
// internal/reliable, keeping netio's wire-level dependency surface to
// just what the handshake itself needs.
const CorePrefixByte byte = 0x00

func (h *HandshakeHandler) buildKeyResponseBody(sessionID uint32, key []byte) ([]byte, error) {
	const rawSize = 4 + rollingKeySize + 4 + crypto.ChecksumSize // sessionID + key + EncXORPass key word + checksum
	padded := rawSize
	if rem := padded % crypto.BlowfishBlockSize; rem != 0 {
		padded += crypto.BlowfishBlockSize - rem
	}

	body := make([]byte, padded)
	binary.LittleEndian.PutUint32(body[0:4], sessionID)
	copy(body[4:4+rollingKeySize], key)

	crypto.EncXORPass(body, 0, len(body), int32(sessionID))
	crypto.AppendChecksum(body, 0, len(body))

	if err := h.blowfish.Encrypt(body, 0, len(body)); err != nil {
		return nil, err
	}
	return body, nil
}
