package chat

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/subzone/zonecore/internal/capability"
	"github.com/subzone/zonecore/internal/player"
)

// Target names what a command acts on (§4.8).
type Target int

const (
	TargetArena Target = iota
	TargetPlayer
	TargetTeam
)

// CommandContext is handed to a CommandHandler.
type CommandContext struct {
	Player *player.Player
	Arena  string
	Target Target
	Name   string
	Params string
}

// CommandHandler processes one dispatched command.
type CommandHandler func(ctx CommandContext)

// Registry routes `?`/`*`-prefixed chat lines to registered handlers,
// scoped either globally or to one arena, falling back to a
// billing-registered default handler for anything unrecognized, or
// forced there outright by a leading `\` (§4.8).
type Registry struct {
	mu       sync.RWMutex
	global   map[string]CommandHandler
	arena    map[string]map[string]CommandHandler
	unlogged map[string]bool
	required map[string]capability.Capability
	fallback CommandHandler

	caps *capability.Service
	log  *slog.Logger
}

// NewRegistry creates an empty command registry. caps may be nil, in
// which case no command requires a capability check.
func NewRegistry(log *slog.Logger, caps *capability.Service) *Registry {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		global:   make(map[string]CommandHandler),
		arena:    make(map[string]map[string]CommandHandler),
		unlogged: make(map[string]bool),
		required: make(map[string]capability.Capability),
		caps:     caps,
		log:      log,
	}
}

// RequireCapability gates name behind cap: a player whose group has
// not been granted cap is treated as if name did not match, falling
// through to the default handler like any other unknown command.
func (r *Registry) RequireCapability(name string, cap capability.Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.required[strings.ToLower(name)] = cap
}

// AddGlobal registers h for name across every arena.
func (r *Registry) AddGlobal(name string, h CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global[strings.ToLower(name)] = h
}

// RemoveGlobal unregisters a global command.
func (r *Registry) RemoveGlobal(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.global, strings.ToLower(name))
}

// AddArena registers h for name within arenaName only; it shadows any
// global handler of the same name for that arena.
func (r *Registry) AddArena(arenaName, name string, h CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.arena[arenaName]
	if !ok {
		m = make(map[string]CommandHandler)
		r.arena[arenaName] = m
	}
	m[strings.ToLower(name)] = h
}

// RemoveArena unregisters an arena-scoped command.
func (r *Registry) RemoveArena(arenaName, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.arena[arenaName], strings.ToLower(name))
}

// SetDefaultHandler installs the billing-registered fallback invoked
// for any command with no matching registered handler, and for every
// `\`-prefixed line regardless of whether a local handler exists.
func (r *Registry) SetDefaultHandler(h CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

// MarkUnlogged adds name to the set of commands recorded with
// redacted parameters (§4.8).
func (r *Registry) MarkUnlogged(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unlogged[strings.ToLower(name)] = true
}

func (r *Registry) isUnlogged(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unlogged[strings.ToLower(name)]
}

func (r *Registry) capabilityAllows(p *player.Player, name string) bool {
	if r.caps == nil {
		return true
	}
	r.mu.RLock()
	cap, gated := r.required[strings.ToLower(name)]
	r.mu.RUnlock()
	if !gated {
		return true
	}
	return r.caps.Can(p.PID, cap)
}

func (r *Registry) lookup(arenaName, name string) (CommandHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name = strings.ToLower(name)
	if m, ok := r.arena[arenaName]; ok {
		if h, ok := m[name]; ok {
			return h, true
		}
	}
	h, ok := r.global[name]
	return h, ok
}

// Dispatch parses line for a leading `?`, `*`, or `\` and routes it.
// It reports whether line was recognized as a command at all (false
// for ordinary chat text with none of those prefixes); the caller is
// expected to treat a false return as a normal chat message instead.
func (r *Registry) Dispatch(p *player.Player, arenaName string, target Target, line string) bool {
	if line == "" {
		return false
	}

	forceDefault := false
	switch line[0] {
	case '\\':
		forceDefault = true
		line = line[1:]
	case '?', '*':
		line = line[1:]
	default:
		return false
	}

	name, params, _ := strings.Cut(line, " ")
	if name == "" {
		return false
	}

	var h CommandHandler
	if !forceDefault {
		h, _ = r.lookup(arenaName, name)
		if h != nil && !r.capabilityAllows(p, name) {
			h = nil
		}
	}
	if h == nil {
		r.mu.RLock()
		h = r.fallback
		r.mu.RUnlock()
	}

	loggedParams := params
	if r.isUnlogged(name) {
		loggedParams = "<redacted>"
	}
	r.log.Info("command dispatched", "name", name, "params", loggedParams, "arena", arenaName, "target", target)

	if h == nil {
		r.log.Debug("no handler for command", "name", name)
		return true
	}

	h(CommandContext{Player: p, Arena: arenaName, Target: target, Name: name, Params: params})
	return true
}
