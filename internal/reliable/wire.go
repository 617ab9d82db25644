// Package reliable implements the Reliable Transport (§4.5): sequencing,
// ACKs, retries, grouping, sized streams, and the bandwidth limiter,
// layered on top of whatever raw datagrams internal/netio hands it
// post-decryption.
package reliable

// CoreType is the second byte of a 0x00-prefixed core-subtype packet
// (§6 "UDP wire format"): "0x00 = core subtype in byte 1".
type CoreType byte

const (
	CoreKeyResponse    CoreType = 0x01
	CoreReliable       CoreType = 0x02
	CoreAck            CoreType = 0x03
	CoreSyncRequest    CoreType = 0x05
	CoreSyncResponse   CoreType = 0x06
	CoreDisconnect     CoreType = 0x07
	CoreSmallChunk     CoreType = 0x08
	CoreSmallChunkEnd  CoreType = 0x09
	CoreSizedData      CoreType = 0x0A
	CoreCancelSized    CoreType = 0x0B
	CoreCancelSizedAck CoreType = 0x0C
	CoreGrouped        CoreType = 0x0E
)

// IsBandwidthFeedback reports whether b falls in the 0x10-0x12
// bandwidth-feedback range (§6).
func IsBandwidthFeedback(b byte) bool { return b >= 0x10 && b <= 0x12 }

// CorePrefix is the first byte of every core-subtype packet.
const CorePrefix byte = 0x00

// MaxGroupedPayload bounds the grouped-envelope (0x00 0x0E) body so the
// resulting datagram stays inside a safe MTU.
const MaxGroupedPayload = 510

// ReliableHeaderSize is len([0x00, 0x02, seqnum_u32le]).
const ReliableHeaderSize = 6

// AckHeaderSize is len([0x00, 0x03, seqnum_u32le]).
const AckHeaderSize = 6

// SizedDataHeaderSize is len([0x00, 0x0A, total_length_u32le, offset_u32le]),
// not counting the chunk that follows. The total-length field repeats
// in every chunk and is fixed at stream start; there is no separate
// sized-request subtype — the first chunk at offset 0 both announces
// the transfer and carries its first bytes, and a mismatched total on
// a later chunk aborts the transfer.
const SizedDataHeaderSize = 10
