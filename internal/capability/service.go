package capability

import (
	"sync"

	"github.com/subzone/zonecore/internal/player"
)

// Service holds the group->capability assignments and per-player group
// membership, guarded by one RWMutex (the same single-lock-per-table
// idiom internal/broker uses for its interface map — the table is
// small and reads vastly outnumber writes).
type Service struct {
	mu sync.RWMutex

	groupCaps   map[Group]map[Capability]bool
	playerGroup map[player.PID]Group
}

// NewService creates a service with the default and anonymous groups
// present but empty; callers grant capabilities to them with Grant.
func NewService() *Service {
	return &Service{
		groupCaps: map[Group]map[Capability]bool{
			GroupDefault:   {},
			GroupAnonymous: {},
		},
		playerGroup: make(map[player.PID]Group),
	}
}

// Grant adds cap to group, creating the group if it does not exist.
func (s *Service) Grant(group Group, cap Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	caps, ok := s.groupCaps[group]
	if !ok {
		caps = make(map[Capability]bool)
		s.groupCaps[group] = caps
	}
	caps[cap] = true
}

// Revoke removes cap from group.
func (s *Service) Revoke(group Group, cap Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groupCaps[group], cap)
}

// SetPlayerGroup assigns pid to group, replacing any prior assignment.
func (s *Service) SetPlayerGroup(pid player.PID, group Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerGroup[pid] = group
}

// ClearPlayerGroup removes pid's explicit assignment; future checks
// fall back to GroupDefault.
func (s *Service) ClearPlayerGroup(pid player.PID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.playerGroup, pid)
}

// GroupOf reports pid's assigned group, or GroupDefault if none.
func (s *Service) GroupOf(pid player.PID) Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.playerGroup[pid]
	if !ok {
		return GroupDefault
	}
	return g
}

// Can reports whether pid's group has been granted cap.
func (s *Service) Can(pid player.PID, cap Capability) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	group, ok := s.playerGroup[pid]
	if !ok {
		group = GroupDefault
	}
	return s.groupCaps[group][cap]
}

// GroupCan reports whether group itself has been granted cap, without
// going through a player's assignment.
func (s *Service) GroupCan(group Group, cap Capability) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groupCaps[group][cap]
}
