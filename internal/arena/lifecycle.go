package arena

import "github.com/subzone/zonecore/internal/broker"

// PreCreate, Create, and Destroy are the three callback types fired on
// an arena's broker node during its lifecycle (§4.2); add_hold is only
// valid while one of these is dispatching.
type PreCreate func(a *Arena)
type Create func(a *Arena)
type Destroy func(a *Arena)

// PersistHooks lets the lifecycle driver request an interval load/save
// without this package depending on internal/persist; the persistence
// executor supplies the real implementation and calls done() once the
// request completes, posted back via the mainloop work queue.
type PersistHooks struct {
	RequestLoad func(a *Arena, done func())
	RequestSave func(a *Arena, done func())
}

type syncState struct {
	loadDone bool
	saveDone bool
}

// Advance runs one lifecycle sweep over every arena in the table,
// advancing each past whatever state it is currently blocked in. Call
// once per mainloop tick.
func (m *Manager) Advance(hooks PersistHooks) {
	m.mu.RLock()
	arenas := make([]*Arena, 0, len(m.byName))
	for _, a := range m.byName {
		arenas = append(arenas, a)
	}
	m.mu.RUnlock()

	for _, a := range arenas {
		m.step(a, hooks)
	}
}

func (m *Manager) step(a *Arena, hooks PersistHooks) {
	switch a.Status() {
	case StatusDoInit0:
		a.setHoldWindow(HoldWindowPreCreate)
		broker.Fire[PreCreate](a.Broker, func(h PreCreate) { h(a) })
		a.setHoldWindow(HoldWindowNone)
		a.setStatus(StatusWaitHolds0)

	case StatusWaitHolds0:
		if a.Holds() == 0 {
			a.setStatus(StatusDoInit1)
		}

	case StatusDoInit1:
		m.syncMu.Lock()
		m.syncState[a] = &syncState{}
		m.syncMu.Unlock()
		if hooks.RequestLoad != nil {
			hooks.RequestLoad(a, func() { m.markLoadDone(a) })
		} else {
			m.markLoadDone(a)
		}
		a.setStatus(StatusWaitSync1)

	case StatusWaitSync1:
		if m.loadDone(a) {
			a.setStatus(StatusDoInit2)
		}

	case StatusDoInit2:
		a.setHoldWindow(HoldWindowCreate)
		broker.Fire[Create](a.Broker, func(h Create) { h(a) })
		a.setHoldWindow(HoldWindowNone)
		a.setStatus(StatusWaitHolds1)

	case StatusWaitHolds1:
		if a.Holds() == 0 {
			a.setStatus(StatusRunning)
		}

	// StatusRunning: advanced to StatusDoWriteData only by an explicit
	// destroy/recycle request (see RequestDestroy, RecycleArena).

	case StatusDoWriteData:
		m.syncMu.Lock()
		m.syncState[a] = &syncState{}
		m.syncMu.Unlock()
		if hooks.RequestSave != nil {
			hooks.RequestSave(a, func() { m.markSaveDone(a) })
		} else {
			m.markSaveDone(a)
		}
		a.setStatus(StatusWaitHolds2)

	case StatusWaitHolds2:
		if a.Holds() == 0 && m.saveDone(a) {
			a.setStatus(StatusDoDestroy1)
		}

	case StatusDoDestroy1:
		a.setHoldWindow(HoldWindowDestroy)
		broker.Fire[Destroy](a.Broker, func(h Destroy) { h(a) })
		a.setHoldWindow(HoldWindowNone)
		a.setStatus(StatusWaitHolds3)

	case StatusWaitHolds3:
		if a.Holds() == 0 {
			a.setStatus(StatusDoDestroy2)
		}

	case StatusDoDestroy2:
		m.syncMu.Lock()
		delete(m.syncState, a)
		m.syncMu.Unlock()
		if m.ConsumeRecreateRequest(a) {
			m.Recreate(a)
		} else {
			m.Remove(a)
		}
	}
}

// RequestDestroy moves a Running arena into the destroy sequence.
func (m *Manager) RequestDestroy(a *Arena) {
	if a.Status() == StatusRunning {
		a.setStatus(StatusDoWriteData)
	}
}

func (m *Manager) markLoadDone(a *Arena) { m.markDone(a, true) }
func (m *Manager) markSaveDone(a *Arena) { m.markDone(a, false) }

func (m *Manager) markDone(a *Arena, isLoad bool) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()
	s, ok := m.syncState[a]
	if !ok {
		return
	}
	if isLoad {
		s.loadDone = true
	} else {
		s.saveDone = true
	}
}

func (m *Manager) loadDone(a *Arena) bool {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()
	s, ok := m.syncState[a]
	return ok && s.loadDone
}

func (m *Manager) saveDone(a *Arena) bool {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()
	s, ok := m.syncState[a]
	return ok && s.saveDone
}
