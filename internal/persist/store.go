package persist

import (
	"context"
	"log/slog"
	"sync"

	"github.com/subzone/zonecore/internal/arena"
	"github.com/subzone/zonecore/internal/mainloop"
	"github.com/subzone/zonecore/internal/player"
)

// job is one queued executor request: exec runs on the worker
// goroutine against ctx/store, then complete is posted to the
// mainloop once exec returns.
type job struct {
	exec     func(ctx context.Context, rs RowStore)
	complete func()
}

// Store is the persistence executor (§4.7): a FIFO queue drained by
// one worker goroutine, dispatching each request across the
// registered PersistentData<Player|Arena> handlers.
type Store struct {
	rows     RowStore
	mainloop *mainloop.Mainloop
	log      *slog.Logger

	queue chan job

	mu             sync.RWMutex
	playerHandlers []PlayerHandler
	arenaHandlers  []ArenaHandler
}

const defaultQueueDepth = 256

// NewStore creates an executor over rows, posting completions through m.
func NewStore(rows RowStore, m *mainloop.Mainloop, log *slog.Logger) *Store {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Store{
		rows:     rows,
		mainloop: m,
		log:      log,
		queue:    make(chan job, defaultQueueDepth),
	}
}

// Run drains the request queue on the calling goroutine until ctx is
// cancelled. Intended to be started once as its own goroutine.
func (s *Store) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			j.exec(ctx, s.rows)
			if j.complete != nil {
				s.post(j.complete)
			}
		}
	}
}

func (s *Store) post(fn func()) {
	if s.mainloop == nil {
		fn()
		return
	}
	s.mainloop.QueueWorkItem(fn)
}

func (s *Store) enqueue(exec func(ctx context.Context, rs RowStore), complete func()) {
	s.queue <- job{exec: exec, complete: complete}
}

// PutPlayer runs every registered PlayerHandler over p, storing (or,
// for a zero-length result, deleting) each handler's row under that
// handler's own Interval; handlers are not filtered by interval. done,
// if non-nil, is invoked on the mainloop once every handler has been
// applied.
func (s *Store) PutPlayer(p *player.Player, group string, done func(error)) {
	handlers := s.playerHandlersSnapshot()
	pid := int64(p.PID)
	s.enqueue(func(ctx context.Context, rs RowStore) {
		var firstErr error
		for _, h := range handlers {
			body := h.GetData(p)
			var err error
			if len(body) == 0 {
				err = rs.Delete(ctx, OwnerPlayer, pid, group, h.Interval, h.Key)
			} else {
				err = rs.Put(ctx, OwnerPlayer, pid, group, h.Interval, h.Key, body)
			}
			if err != nil && firstErr == nil {
				firstErr = err
				s.log.Error("persist put player failed", "pid", p.PID, "key", h.Key, "err", err)
			}
		}
		if done != nil {
			s.completeWith(done, firstErr)
		}
	}, nil)
}

// GetPlayer loads every registered PlayerHandler's row for p, calling
// SetData with whatever bytes are found (nil if none).
func (s *Store) GetPlayer(p *player.Player, group string, done func(error)) {
	handlers := s.playerHandlersSnapshot()
	pid := int64(p.PID)
	s.enqueue(func(ctx context.Context, rs RowStore) {
		var firstErr error
		for _, h := range handlers {
			body, err := rs.Get(ctx, OwnerPlayer, pid, group, h.Interval, h.Key)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				s.log.Error("persist get player failed", "pid", p.PID, "key", h.Key, "err", err)
				continue
			}
			h.SetData(p, body)
		}
		if done != nil {
			s.completeWith(done, firstErr)
		}
	}, nil)
}

// PutArena is PutPlayer's arena-scoped counterpart.
func (s *Store) PutArena(a *arena.Arena, done func(error)) {
	handlers := s.arenaHandlersSnapshot()
	ownerID := arenaOwnerID(a.Name)
	group := a.BaseName
	s.enqueue(func(ctx context.Context, rs RowStore) {
		var firstErr error
		for _, h := range handlers {
			body := h.GetData(a)
			var err error
			if len(body) == 0 {
				err = rs.Delete(ctx, OwnerArena, ownerID, group, h.Interval, h.Key)
			} else {
				err = rs.Put(ctx, OwnerArena, ownerID, group, h.Interval, h.Key, body)
			}
			if err != nil && firstErr == nil {
				firstErr = err
				s.log.Error("persist put arena failed", "arena", a.Name, "key", h.Key, "err", err)
			}
		}
		if done != nil {
			s.completeWith(done, firstErr)
		}
	}, nil)
}

// GetArena is GetPlayer's arena-scoped counterpart.
func (s *Store) GetArena(a *arena.Arena, done func(error)) {
	handlers := s.arenaHandlersSnapshot()
	ownerID := arenaOwnerID(a.Name)
	group := a.BaseName
	s.enqueue(func(ctx context.Context, rs RowStore) {
		var firstErr error
		for _, h := range handlers {
			body, err := rs.Get(ctx, OwnerArena, ownerID, group, h.Interval, h.Key)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				s.log.Error("persist get arena failed", "arena", a.Name, "key", h.Key, "err", err)
				continue
			}
			h.SetData(a, body)
		}
		if done != nil {
			s.completeWith(done, firstErr)
		}
	}, nil)
}

// EndInterval rotates group/interval onto a fresh generation (§6,
// invariant #8): subsequent Put/Get for this group/interval see no
// data from before the rotation. The prior generation's rows stay in
// the table; no Store or RowStore method reads them.
func (s *Store) EndInterval(group string, interval Interval, done func(error)) {
	s.enqueue(func(ctx context.Context, rs RowStore) {
		err := rs.EndInterval(ctx, group, interval)
		if err != nil {
			s.log.Error("end_interval failed", "group", group, "interval", interval, "err", err)
		}
		if done != nil {
			s.completeWith(done, err)
		}
	}, nil)
}

// ResetGameInterval is the common-case convenience for rotating a
// single arena group's Game interval, e.g. at map change.
func (s *Store) ResetGameInterval(group string, done func(error)) {
	s.EndInterval(group, IntervalGame, done)
}

// SaveAll drains the queue as a barrier: its completion fires only
// after every request enqueued before it has finished, giving callers
// (e.g. a shutdown sequence) a way to know every pending put has
// landed.
func (s *Store) SaveAll(done func()) {
	s.enqueue(func(ctx context.Context, rs RowStore) {}, func() {
		if done != nil {
			done()
		}
	})
}

func (s *Store) completeWith(done func(error), err error) {
	s.post(func() { done(err) })
}
