// Package mainloop implements the single cooperative thread (§4.3) that
// drives timers, the FIFO main-work-item queue, and arena/player
// lifecycle advancement. Network receive runs on its own goroutine per
// socket (sends run on the sender's goroutine); events are handed back
// to this loop via QueueWorkItem so
// that player/arena state transitions never need their own lock.
package mainloop

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ExitCode mirrors the process exit taxonomy from §6.
type ExitCode int

const (
	ExitNormal ExitCode = iota
	ExitModuleInitFailure
	ExitConfigError
	ExitRecycle
)

func (c ExitCode) String() string {
	switch c {
	case ExitNormal:
		return "normal"
	case ExitModuleInitFailure:
		return "module-init-failure"
	case ExitConfigError:
		return "config-error"
	case ExitRecycle:
		return "recycle"
	default:
		return "unknown"
	}
}

type tickable interface {
	tick(now time.Time)
}

// Mainloop is the single coordinating thread. Zero value is not usable;
// construct with New.
type Mainloop struct {
	workCh chan func()
	quitCh chan ExitCode

	quitOnce sync.Once
	drainWG  sync.WaitGroup

	tickMu     sync.Mutex
	registered []tickable

	tickInterval time.Duration
	log          *slog.Logger
}

// New creates a Mainloop. tickInterval bounds how often registered
// timer families and the advance callback are polled; 10ms matches the
// teacher's network poll granularity.
func New(log *slog.Logger) *Mainloop {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Mainloop{
		workCh:       make(chan func(), 1024),
		quitCh:       make(chan ExitCode, 1),
		tickInterval: 10 * time.Millisecond,
		log:          log,
	}
}

func (m *Mainloop) register(t tickable) {
	m.tickMu.Lock()
	m.registered = append(m.registered, t)
	m.tickMu.Unlock()
}

// QueueWorkItem posts fn to run on the mainloop thread. Safe to call
// from any goroutine (network receive/send threads, worker-pool
// timers, persistence callbacks).
func (m *Mainloop) QueueWorkItem(fn func()) {
	m.drainWG.Add(1)
	m.workCh <- func() {
		defer m.drainWG.Done()
		fn()
	}
}

// WaitForWorkItemDrain blocks until every work item queued before this
// call has run. Modules call this during teardown to be sure no
// in-flight callback still references state they are about to free.
func (m *Mainloop) WaitForWorkItemDrain() {
	m.drainWG.Wait()
}

// Quit requests the loop stop after draining the work-item queue. Only
// the first call takes effect.
func (m *Mainloop) Quit(code ExitCode) {
	m.quitOnce.Do(func() {
		m.quitCh <- code
	})
}

// Run executes the loop until Quit is called (and the queue drains) or
// ctx is cancelled. advance is invoked once per tick, after due timers
// fire and the work queue is drained, to advance arena and player
// lifecycle state machines; it may be nil.
func (m *Mainloop) Run(ctx context.Context, advance func(now time.Time)) ExitCode {
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case code := <-m.quitCh:
			m.drainNow()
			m.log.Info("mainloop exiting", "code", code.String())
			return code

		case fn := <-m.workCh:
			fn()

		case <-ctx.Done():
			m.drainNow()
			return ExitNormal

		case now := <-ticker.C:
			m.tickMu.Lock()
			groups := append([]tickable(nil), m.registered...)
			m.tickMu.Unlock()
			for _, g := range groups {
				g.tick(now)
			}
			m.drainNow()
			if advance != nil {
				advance(now)
			}
		}
	}
}

// drainNow runs every work item already sitting in the channel buffer
// without blocking for new ones, used on the way out of Run.
func (m *Mainloop) drainNow() {
	for {
		select {
		case fn := <-m.workCh:
			fn()
		default:
			return
		}
	}
}
