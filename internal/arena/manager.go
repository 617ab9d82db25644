package arena

import (
	"log/slog"
	"sync"

	"github.com/subzone/zonecore/internal/broker"
	"github.com/subzone/zonecore/internal/extradata"
	"github.com/subzone/zonecore/internal/player"
)

// PendingMove is one queued send_to_arena transition, consumed by the
// mainloop's player-advancement step.
type PendingMove struct {
	Player            *player.Player
	SpawnX, SpawnY    int16
}

// Manager owns the global arena table (§4.2).
type Manager struct {
	mu     sync.RWMutex
	byName map[string]*Arena // normalized name -> arena (any lifecycle state)

	recreate map[string]bool // arenas mid-recycle_arena: recreate instead of drop on DoDestroy2

	root     *broker.Broker
	registry *extradata.Registry[Arena]
	log      *slog.Logger

	pendingMu sync.Mutex
	pending   []PendingMove

	syncMu    sync.Mutex
	syncState map[*Arena]*syncState
}

// NewManager creates an empty arena table. root is the global broker;
// every arena gets a child node of it. registry supplies the per-arena
// extra-data slots every new Arena is constructed with.
func NewManager(root *broker.Broker, registry *extradata.Registry[Arena], log *slog.Logger) *Manager {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		byName:    make(map[string]*Arena),
		recreate:  make(map[string]bool),
		root:      root,
		registry:  registry,
		log:       log,
		syncState: make(map[*Arena]*syncState),
	}
}

// FindArena is a case-insensitive lookup restricted to the Running
// state (invariant: exactly one Running+ entry per name).
func (m *Manager) FindArena(name string) (*Arena, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.byName[normalize(name)]
	if !ok || a.Status() != StatusRunning {
		return nil, false
	}
	return a, true
}

// GetOrCreate returns the existing arena table entry for name (in
// whatever lifecycle state it is in), or creates a fresh one at
// DoInit0 if none exists.
func (m *Manager) GetOrCreate(name string) *Arena {
	key := normalize(name)

	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.byName[key]; ok {
		return a
	}
	a := newArena(name, m.registry.NewStore(), m.root)
	m.byName[key] = a
	return a
}

// SendToArena initiates a transition of p into arenaName: it sets
// p.NewArena and advances p's status, then queues the move for the
// mainloop's next player-advancement sweep to actually perform.
func (m *Manager) SendToArena(p *player.Player, arenaName string, spawnX, spawnY int16) {
	m.GetOrCreate(arenaName)

	p.NewArena = arenaName
	p.Status = player.StatusDoFreqAndArenaSync

	m.pendingMu.Lock()
	m.pending = append(m.pending, PendingMove{Player: p, SpawnX: spawnX, SpawnY: spawnY})
	m.pendingMu.Unlock()
}

// DrainPendingMoves returns and clears every move queued by SendToArena
// since the last drain. Call once per mainloop sweep.
func (m *Manager) DrainPendingMoves() []PendingMove {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	out := m.pending
	m.pending = nil
	return out
}

// RecycleArena marks a for destroy-then-recreate: players are expected
// to be suspended by the caller before this is invoked, the arena is
// torn down through the normal Destroy sequence, and the lifecycle
// driver recreates it fresh (same name, reset extra-data slots) once
// DoDestroy2 completes, instead of removing its table entry.
func (m *Manager) RecycleArena(a *Arena) {
	m.mu.Lock()
	m.recreate[normalize(a.Name)] = true
	m.mu.Unlock()
	a.setStatus(StatusDoWriteData)
}

// requestRecreate is consulted by the lifecycle driver when an arena
// reaches DoDestroy2: if true, the arena is reset and restarted at
// DoInit0 instead of being removed from the table.
func (m *Manager) requestRecreate(a *Arena) bool {
	key := normalize(a.Name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recreate[key] {
		delete(m.recreate, key)
		return true
	}
	return false
}

// Remove deletes a's table entry. Called by the lifecycle driver once
// an arena not marked for recycle reaches DoDestroy2.
func (m *Manager) Remove(a *Arena) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byName, normalize(a.Name))
}

// Recreate resets a's extra-data slots and restarts its lifecycle at
// DoInit0, used by the lifecycle driver for an arena marked via
// RecycleArena.
func (m *Manager) Recreate(a *Arena) {
	m.registry.Reset(a.extra)
	a.setStatus(StatusDoInit0)
}

// ConsumeRecreateRequest reports and clears whether a was marked for
// recycle via RecycleArena, for the lifecycle driver to decide between
// Remove and Recreate at DoDestroy2.
func (m *Manager) ConsumeRecreateRequest(a *Arena) bool {
	return m.requestRecreate(a)
}

// GetPopulation sweeps tbl updating every arena's player/playing
// counts. Callers needing a consistent read across several arenas
// should hold their own higher-level lock; per-arena counts are
// readable lock-free via Arena.PlayerCount/PlayingCount.
func (m *Manager) GetPopulation(tbl *player.Table) {
	m.mu.RLock()
	arenas := make(map[string]*Arena, len(m.byName))
	for k, a := range m.byName {
		arenas[k] = a
	}
	m.mu.RUnlock()

	total := make(map[string]int32, len(arenas))
	playing := make(map[string]int32, len(arenas))

	tbl.Range(func(p *player.Player) bool {
		if p.Arena == "" {
			return true
		}
		if p.Status != player.StatusPlaying && p.Status != player.StatusLeavingArena {
			return true
		}
		key := normalize(p.Arena)
		total[key]++
		if p.Status == player.StatusPlaying {
			playing[key]++
		}
		return true
	})

	for key, a := range arenas {
		a.playerCount.Store(total[key])
		a.playingCount.Store(playing[key])
	}
}

// AllRunning returns every arena currently in the Running state,
// primarily for listing/admin/population-reporting purposes.
func (m *Manager) AllRunning() []*Arena {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Arena, 0, len(m.byName))
	for _, a := range m.byName {
		if a.Status() == StatusRunning {
			out = append(out, a)
		}
	}
	return out
}
