package persist

import (
	"github.com/subzone/zonecore/internal/arena"
	"github.com/subzone/zonecore/internal/player"
)

// PlayerHandler is one registered PersistentData<Player> handler
// (§4.7): GetData produces the bytes to store (nil/empty deletes the
// row), SetData installs bytes read back from storage.
type PlayerHandler struct {
	Key      string
	Interval Interval
	GetData  func(p *player.Player) []byte
	SetData  func(p *player.Player, body []byte)
}

// ArenaHandler is the arena-scoped counterpart of PlayerHandler.
type ArenaHandler struct {
	Key      string
	Interval Interval
	GetData  func(a *arena.Arena) []byte
	SetData  func(a *arena.Arena, body []byte)
}

// RegisterPlayerHandler adds h to the set consulted by PutPlayer/GetPlayer.
func (s *Store) RegisterPlayerHandler(h PlayerHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerHandlers = append(s.playerHandlers, h)
}

// RegisterArenaHandler adds h to the set consulted by PutArena/GetArena.
func (s *Store) RegisterArenaHandler(h ArenaHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arenaHandlers = append(s.arenaHandlers, h)
}

func (s *Store) playerHandlersSnapshot() []PlayerHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PlayerHandler(nil), s.playerHandlers...)
}

func (s *Store) arenaHandlersSnapshot() []ArenaHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ArenaHandler(nil), s.arenaHandlers...)
}

// arenaOwnerID derives a stable numeric owner id for an arena from its
// name, since arena.Arena (unlike player.Player with its PID) carries
// no integer identity of its own.
func arenaOwnerID(name string) int64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(name); i++ {
		h ^= uint64(name[i])
		h *= 1099511628211
	}
	return int64(h)
}
