// Package persist implements the Persistence Executor (§4.7): a FIFO
// request queue drained by one worker goroutine, a generic
// (owner_type, owner_id, arena_group, interval, key) row model backed
// by Postgres (pgx + goose), and the PersistentData<Player|Arena>
// handler registry that decides what gets read or written for each
// request.
package persist

// Interval names the five persistence intervals (§4.7/§6): how long a
// row's generation lives before end_interval rotates it.
type Interval int16

const (
	IntervalForever Interval = iota
	IntervalReset
	IntervalMapRotation
	IntervalGame
	IntervalForeverNotShared
)

func (i Interval) String() string {
	switch i {
	case IntervalForever:
		return "Forever"
	case IntervalReset:
		return "Reset"
	case IntervalMapRotation:
		return "MapRotation"
	case IntervalGame:
		return "Game"
	case IntervalForeverNotShared:
		return "ForeverNotShared"
	default:
		return "Unknown"
	}
}

// OwnerType distinguishes player-scoped from arena-scoped rows.
type OwnerType int16

const (
	OwnerPlayer OwnerType = 1
	OwnerArena  OwnerType = 2
)

// GroupFor resolves the arena_group a row is filed under: an explicit
// ScoreGroup override if given, otherwise the arena's base_name — per
// §4.7's "arena grouping by base_name for intervals with ordinal < 5",
// true of every defined Interval.
func GroupFor(baseName, scoreGroupOverride string) string {
	if scoreGroupOverride != "" {
		return scoreGroupOverride
	}
	return baseName
}
