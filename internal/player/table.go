package player

import (
	"net"
	"sync"

	"github.com/subzone/zonecore/internal/extradata"
)

// Table is the global player table: pid allocation and the lookup lock
// protocol. Mutations go through Table so the pid-reuse invariant holds
// (a pid is only handed back out after the prior owner's extra-data
// slots have been fully disposed).
type Table struct {
	mu       sync.RWMutex
	byPID    map[PID]*Player
	nextPID  PID
	freedPID []PID

	registry *extradata.Registry[Player]
}

// NewTable creates an empty player table backed by registry for
// per-player extra-data slots.
func NewTable(registry *extradata.Registry[Player]) *Table {
	return &Table{
		byPID:    make(map[PID]*Player),
		registry: registry,
	}
}

// Accept creates a new Player for a freshly accepted connection. A
// connection from an IP that was previously seen still gets a new pid;
// pid reuse only happens after Teardown fully removes a prior player.
func (t *Table) Accept(addr *net.UDPAddr, clientType ClientType, listenSlot int) *Player {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pid PID
	if n := len(t.freedPID); n > 0 {
		pid, t.freedPID = t.freedPID[n-1], t.freedPID[:n-1]
	} else {
		pid, t.nextPID = t.nextPID, t.nextPID+1
	}

	p := &Player{
		PID:        pid,
		ClientType: clientType,
		Status:     StatusConnected,
		Address:    addr,
		ListenSlot: listenSlot,
		extra:      t.registry.NewStore(),
	}
	t.byPID[pid] = p
	return p
}

// Teardown removes p from the table, disposes its extra-data slots,
// and returns its pid to the free pool. Call only once p has reached
// TimeWait with no further callbacks pending.
func (t *Table) Teardown(p *Player) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byPID[p.PID]; !ok {
		return
	}
	delete(t.byPID, p.PID)
	t.registry.Dispose(p.extra)
	t.freedPID = append(t.freedPID, p.PID)
}

// Get looks up a player by pid.
func (t *Table) Get(pid PID) (*Player, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byPID[pid]
	return p, ok
}

// Range calls fn for every currently-registered player, stopping early
// if fn returns false. Used by population sweeps (§4.2) and similar.
func (t *Table) Range(fn func(*Player) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.byPID {
		if !fn(p) {
			return
		}
	}
}

// Count returns the number of currently-registered players.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byPID)
}

// Get reads an extra-data slot on p.
func Get[T any](p *Player, key extradata.Key[Player, T]) T {
	return extradata.Get(p.extra, key)
}

// Set writes an extra-data slot on p.
func Set[T any](p *Player, key extradata.Key[Player, T], v T) {
	extradata.Set(p.extra, key, v)
}
