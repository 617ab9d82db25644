package crypto

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blowfish"
)

// Sizes used by the connection-init handshake (§4.4/§6): the key-response
// packet is wrapped in Blowfish ECB, and every init-pipeline packet carries
// a trailing 32-bit XOR checksum over 32-bit words.
const (
	BlowfishBlockSize = 8
	ChecksumSize      = 4

	// xorSkipBytes/xorStopOffset bound the EncXORPass/DecXORPass obfuscation
	// pass applied to the init packet before the checksum is appended: the
	// leading session id is left in the clear and the accumulated key is
	// written into the trailing word instead of being XORed.
	xorSkipBytes  = 4
	xorStopOffset = 8
)

// DefaultHandshakeKey is the static Blowfish key used to wrap the
// connection-init key-response packet before a per-connection key has been
// negotiated.
var DefaultHandshakeKey = []byte{
	0x5F, 0x3B, 0x76, 0x2E, 0x5D, 0x30, 0x35, 0x2D,
	0x33, 0x31, 0x21, 0x7C, 0x2B, 0x2D, 0x25, 0x78,
	0x54, 0x21, 0x5E, 0x5B, 0x24, 0x00,
}

// BlowfishCipher wraps Blowfish ECB encryption/decryption for the
// connection-init handshake.
type BlowfishCipher struct {
	cipher *blowfish.Cipher
}

// NewBlowfishCipher creates a new Blowfish ECB cipher from the given key.
func NewBlowfishCipher(key []byte) (*BlowfishCipher, error) {
	c, err := blowfish.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating blowfish cipher: %w", err)
	}
	return &BlowfishCipher{cipher: c}, nil
}

// Encrypt encrypts data in-place using Blowfish ECB mode.
// Data length must be a multiple of 8.
func (b *BlowfishCipher) Encrypt(data []byte, offset, size int) error {
	if size%BlowfishBlockSize != 0 {
		return fmt.Errorf("blowfish encrypt: size %d is not a multiple of %d", size, BlowfishBlockSize)
	}
	if offset+size > len(data) {
		return fmt.Errorf("blowfish encrypt: offset %d + size %d exceeds data length %d", offset, size, len(data))
	}
	for i := offset; i < offset+size; i += BlowfishBlockSize {
		b.cipher.Encrypt(data[i:i+BlowfishBlockSize], data[i:i+BlowfishBlockSize])
	}
	return nil
}

// Decrypt decrypts data in-place using Blowfish ECB mode.
// Data length must be a multiple of 8.
func (b *BlowfishCipher) Decrypt(data []byte, offset, size int) error {
	if size%BlowfishBlockSize != 0 {
		return fmt.Errorf("blowfish decrypt: size %d is not a multiple of %d", size, BlowfishBlockSize)
	}
	if offset+size > len(data) {
		return fmt.Errorf("blowfish decrypt: offset %d + size %d exceeds data length %d", offset, size, len(data))
	}
	for i := offset; i < offset+size; i += BlowfishBlockSize {
		b.cipher.Decrypt(data[i:i+BlowfishBlockSize], data[i:i+BlowfishBlockSize])
	}
	return nil
}

// AppendChecksum calculates and appends a 32-bit XOR checksum to the data.
// The data must have at least 4 extra bytes at the end for the checksum.
// Size must be a multiple of 4.
func AppendChecksum(data []byte, offset, size int) {
	var checksum uint32
	for i := offset; i < offset+size-ChecksumSize; i += ChecksumSize {
		checksum ^= binary.LittleEndian.Uint32(data[i:])
	}
	binary.LittleEndian.PutUint32(data[offset+size-ChecksumSize:], checksum)
}

// VerifyChecksum verifies that XOR of all 32-bit words in the range equals zero.
func VerifyChecksum(data []byte, offset, size int) bool {
	if size%ChecksumSize != 0 || size <= ChecksumSize {
		return false
	}
	var checksum uint32
	for i := offset; i < offset+size; i += ChecksumSize {
		checksum ^= binary.LittleEndian.Uint32(data[i:])
	}
	return checksum == 0
}

// EncXORPass applies the pre-encryption XOR obfuscation pass used for the
// init-pipeline packet. The key is a 32-bit accumulator seeded from the
// connection's session id.
func EncXORPass(data []byte, offset, size int, key int32) {
	ecx := uint32(key)
	stop := offset + size - xorStopOffset
	pos := offset + xorSkipBytes

	for pos < stop {
		edx := binary.LittleEndian.Uint32(data[pos:])
		ecx += edx
		edx ^= ecx
		binary.LittleEndian.PutUint32(data[pos:], edx)
		pos += ChecksumSize
	}

	binary.LittleEndian.PutUint32(data[stop:], ecx)
}

// DecXORPass reverses EncXORPass. It reads the final accumulated key from
// the word at offset+size-8, where EncXORPass wrote it (just before the
// 4-byte checksum slot), and walks the buffer from end to start.
func DecXORPass(data []byte, offset, size int) {
	stop := offset + size - xorStopOffset
	pos := offset + xorSkipBytes

	ecx := binary.LittleEndian.Uint32(data[stop:])

	for i := stop - ChecksumSize; i >= pos; i -= ChecksumSize {
		edx := binary.LittleEndian.Uint32(data[i:])
		edx ^= ecx
		binary.LittleEndian.PutUint32(data[i:], edx)
		ecx -= edx
	}
}
