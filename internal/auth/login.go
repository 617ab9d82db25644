package auth

import "encoding/binary"

// LoginPacket is a typed view over the fixed-layout prefix of a raw
// login packet (§4.6 "login_packet"): name and password follow the
// teacher's fixed-width null-terminated-string convention, with
// whatever bytes remain handed to authenticators as ExtraBytes.
type LoginPacket struct {
	Name          string
	Password      string
	ClientVersion uint32
}

const (
	nameFieldSize     = 24
	passwordFieldSize = 16
	loginPrefixSize   = 4 + nameFieldSize + passwordFieldSize
)

// ParseLoginPacket decodes raw's fixed-width prefix. Bytes beyond the
// prefix are left for the caller to slice off as ExtraBytes.
func ParseLoginPacket(raw []byte) (LoginPacket, error) {
	if len(raw) < loginPrefixSize {
		return LoginPacket{}, ErrShortLoginPacket
	}
	return LoginPacket{
		ClientVersion: binary.LittleEndian.Uint32(raw[0:4]),
		Name:          cstring(raw[4 : 4+nameFieldSize]),
		Password:      cstring(raw[4+nameFieldSize : loginPrefixSize]),
	}, nil
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
