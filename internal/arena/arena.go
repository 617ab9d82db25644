// Package arena implements the Arena Manager (§2, §4.2): the arena
// table, its twelve-state lifecycle state machine, holds, and the
// extra-data slot registry for per-arena data. Status is an
// int32-backed enum with a String method, the same shape the teacher
// uses for its connection-state machines.
package arena

import (
	"strings"
	"sync/atomic"

	"github.com/subzone/zonecore/internal/broker"
	"github.com/subzone/zonecore/internal/extradata"
)

// Status drives the arena lifecycle (§4.2). Transitions happen only on
// a periodic mainloop sweep.
type Status int32

const (
	StatusDoInit0 Status = iota
	StatusWaitHolds0
	StatusDoInit1
	StatusWaitSync1
	StatusDoInit2
	StatusWaitHolds1
	StatusRunning
	StatusDoWriteData
	StatusWaitHolds2
	StatusDoDestroy1
	StatusWaitHolds3
	StatusDoDestroy2
)

func (s Status) String() string {
	switch s {
	case StatusDoInit0:
		return "do-init-0"
	case StatusWaitHolds0:
		return "wait-holds-0"
	case StatusDoInit1:
		return "do-init-1"
	case StatusWaitSync1:
		return "wait-sync-1"
	case StatusDoInit2:
		return "do-init-2"
	case StatusWaitHolds1:
		return "wait-holds-1"
	case StatusRunning:
		return "running"
	case StatusDoWriteData:
		return "do-write-data"
	case StatusWaitHolds2:
		return "wait-holds-2"
	case StatusDoDestroy1:
		return "do-destroy-1"
	case StatusWaitHolds3:
		return "wait-holds-3"
	case StatusDoDestroy2:
		return "do-destroy-2"
	default:
		return "unknown"
	}
}

// HoldWindow names the three lifecycle events during which add_hold may
// be called (§4.2); a hold requested outside these windows is a
// configuration error, logged but not fatal.
type HoldWindow int

const (
	HoldWindowNone HoldWindow = iota
	HoldWindowPreCreate
	HoldWindowCreate
	HoldWindowDestroy
)

// BaseName strips the trailing run of ASCII digits from an arena name,
// the grouping key used to share (interval, PerArena) persisted data
// across arenas with names like "duelarena1", "duelarena2".
func BaseName(name string) string {
	end := len(name)
	for end > 0 && name[end-1] >= '0' && name[end-1] <= '9' {
		end--
	}
	if end == 0 {
		return name
	}
	return name[:end]
}

// Arena is one runtime room hosting a game instance.
type Arena struct {
	Name     string
	BaseName string

	status atomic.Int32

	SpecFreq int16

	playerCount  atomic.Int32
	playingCount atomic.Int32

	ConfigHandle any // opaque per-arena config.Manager scope handle

	// Broker is this arena's node in the Component Broker tree, a
	// child of the global root. Lifecycle callbacks (PreCreate, Create,
	// Destroy) fire on it.
	Broker *broker.Broker

	holds      atomic.Int32
	holdWindow atomic.Int32 // current HoldWindow, set by the lifecycle driver

	extra *extradata.Store[Arena]
}

func newArena(name string, extra *extradata.Store[Arena], root *broker.Broker) *Arena {
	a := &Arena{Name: name, BaseName: BaseName(name), extra: extra, Broker: root.NewArena(name)}
	a.status.Store(int32(StatusDoInit0))
	return a
}

// Status returns the arena's current lifecycle state.
func (a *Arena) Status() Status {
	return Status(a.status.Load())
}

func (a *Arena) setStatus(s Status) {
	a.status.Store(int32(s))
}

// PlayerCount returns the arena's total player count as of the last
// population sweep.
func (a *Arena) PlayerCount() int32 {
	return a.playerCount.Load()
}

// PlayingCount returns the number of the arena's players whose status
// is Playing, as of the last population sweep.
func (a *Arena) PlayingCount() int32 {
	return a.playingCount.Load()
}

// Holds returns the current hold count blocking lifecycle advancement.
func (a *Arena) Holds() int32 {
	return a.holds.Load()
}

// AddHold increments the hold counter. Valid only while the lifecycle
// driver is in one of the three callback windows (PreCreate, Create,
// Destroy); callers outside those windows get ErrNotInHoldWindow.
func (a *Arena) AddHold() error {
	if HoldWindow(a.holdWindow.Load()) == HoldWindowNone {
		return ErrNotInHoldWindow
	}
	a.holds.Add(1)
	return nil
}

// RemoveHold decrements the hold counter. Safe to call from any thread,
// including after the callback window that created the hold has
// closed.
func (a *Arena) RemoveHold() {
	if a.holds.Add(-1) < 0 {
		a.holds.Store(0)
	}
}

func (a *Arena) setHoldWindow(w HoldWindow) {
	a.holdWindow.Store(int32(w))
}

// Get reads an extra-data slot on a.
func Get[T any](a *Arena, key extradata.Key[Arena, T]) T {
	return extradata.Get(a.extra, key)
}

// Set writes an extra-data slot on a.
func Set[T any](a *Arena, key extradata.Key[Arena, T], v T) {
	extradata.Set(a.extra, key, v)
}

// normalize lower-cases an arena name for case-insensitive lookup.
func normalize(name string) string {
	return strings.ToLower(name)
}
