// Package player implements the Player Data Store (§2, §3): player
// identity, the status lifecycle, and the player table's id-allocation
// and lock protocol. Status mirrors teacher's int32-backed connection
// state enums (internal/gameserver's client state machine) generalized
// to the full SubSpace status set.
package player

import (
	"net"

	"github.com/subzone/zonecore/internal/extradata"
)

// ClientType distinguishes the wire protocol a connection speaks.
type ClientType int

const (
	ClientVIE ClientType = iota
	ClientContinuum
	ClientChat
	ClientFake
)

func (c ClientType) String() string {
	switch c {
	case ClientVIE:
		return "vie"
	case ClientContinuum:
		return "continuum"
	case ClientChat:
		return "chat"
	case ClientFake:
		return "fake"
	default:
		return "unknown"
	}
}

// Status is the player lifecycle state machine (§3). It advances only
// on the mainloop thread.
type Status int32

const (
	StatusConnected Status = iota
	StatusNeedAuth
	StatusNeedGlobalSync
	StatusLoggedIn
	StatusDoFreqAndArenaSync
	StatusArenaRespAndCBS
	StatusPlaying
	StatusLeavingArena
	StatusLeavingZone
	StatusWaitGlobalSync1
	StatusWaitArenaSync1
	StatusWaitGlobalSync2
	StatusWaitArenaSync2
	StatusTimeWait
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusNeedAuth:
		return "need-auth"
	case StatusNeedGlobalSync:
		return "need-global-sync"
	case StatusLoggedIn:
		return "logged-in"
	case StatusDoFreqAndArenaSync:
		return "do-freq-and-arena-sync"
	case StatusArenaRespAndCBS:
		return "arena-resp-and-cbs"
	case StatusPlaying:
		return "playing"
	case StatusLeavingArena:
		return "leaving-arena"
	case StatusLeavingZone:
		return "leaving-zone"
	case StatusWaitGlobalSync1:
		return "wait-global-sync-1"
	case StatusWaitArenaSync1:
		return "wait-arena-sync-1"
	case StatusWaitGlobalSync2:
		return "wait-global-sync-2"
	case StatusWaitArenaSync2:
		return "wait-arena-sync-2"
	case StatusTimeWait:
		return "time-wait"
	default:
		return "unknown"
	}
}

// PID is a player's small, server-lifetime-unique identifier. A fresh
// connection from a previously-seen IP is issued a new PID; PIDs are
// only reused after a prior player's teardown fully completes.
type PID int32

// Player is a connection/session record, not a game-entity character
// sheet: it tracks where a connection is in the lifecycle and which
// arena it belongs to, and leaves everything else to per-module
// extra-data slots.
type Player struct {
	PID        PID
	ClientType ClientType
	Status     Status

	Arena    string // current arena name, "" if none
	NewArena string // arena being transitioned into, "" if not transitioning

	Ship int8
	Freq int16

	Address    *net.UDPAddr
	ListenSlot int // index into the configured listen-endpoint list

	extra *extradata.Store[Player]
}
