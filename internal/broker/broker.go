// Package broker implements the Component Broker (§4.1): a dynamic
// service-locator and pub/sub bus with reference-counted interface
// handles, per-arena attachment, typed advisor collections, and
// hierarchical scope between one global root and each arena's child
// node.
//
// The teacher's client/connection registries key every lookup table by
// a concrete struct type behind a RWMutex; the broker generalizes that
// shape to arbitrary interface, callback, and advisor types using Go
// generics instead of a runtime type-registry/reflection scheme, per the
// design note in §9.
package broker

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// ErrBusy is returned by Unregister when the interface's refcount has
// not reached zero.
var ErrBusy = errors.New("broker: interface still held")

// ErrNotFound is returned by Unregister/Release when the token does not
// name a currently-registered entry on its owning node.
var ErrNotFound = errors.New("broker: entry not found")

type ifaceKey struct {
	typ  reflect.Type
	name string
}

type ifaceEntry struct {
	instance any
	refcount int32
}

type callbackEntry struct {
	id      uuid.UUID
	handler any
}

type advisorEntry struct {
	id      uuid.UUID
	advisor any
}

// Broker is one node of the rooted broker tree: the global root, or one
// per-arena child referencing the root as parent.
type Broker struct {
	mu sync.RWMutex

	name   string // "" for the global root, else the arena name
	parent *Broker

	interfaces map[ifaceKey]*ifaceEntry
	callbacks  map[reflect.Type][]callbackEntry
	advisors   map[reflect.Type][]advisorEntry
}

// NewRoot creates the global broker root. It is created once during
// startup and torn down, in reverse dependency order, at shutdown; pass
// it explicitly into every component rather than reaching for a global.
func NewRoot() *Broker {
	return newNode("", nil)
}

// NewArena creates a child node scoped to the named arena. Interface and
// advisor lookups on the child fall through to the parent; callback
// fires do not.
func (b *Broker) NewArena(name string) *Broker {
	return newNode(name, b)
}

func newNode(name string, parent *Broker) *Broker {
	return &Broker{
		name:       name,
		parent:     parent,
		interfaces: make(map[ifaceKey]*ifaceEntry),
		callbacks:  make(map[reflect.Type][]callbackEntry),
		advisors:   make(map[reflect.Type][]advisorEntry),
	}
}

// IfaceToken is the opaque handle returned by RegisterInterface and
// consumed by Unregister; the IfaceToken returned by GetInterface is
// consumed by Release.
type IfaceToken struct {
	node *Broker
	key  ifaceKey
}

// RegisterInterface publishes instance under type T and name on b
// (name == "" is the anonymous registration; a named registration is
// stored under its name only). Registering the same (T, name) pair
// twice on one node returns an error, whether or not name is empty.
func RegisterInterface[T any](b *Broker, instance T, name string) (IfaceToken, error) {
	key := ifaceKey{typ: reflect.TypeFor[T](), name: name}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.interfaces[key]; exists {
		return IfaceToken{}, fmt.Errorf("broker: interface %s (name=%q) already registered on %q", key.typ, name, b.name)
	}
	b.interfaces[key] = &ifaceEntry{instance: instance}
	return IfaceToken{node: b, key: key}, nil
}

// GetInterface resolves type T by name (name == "" for the anonymous
// registration), searching b then its ancestor chain, and increments
// the winning entry's refcount. The returned IfaceToken must be passed
// to Release once the caller is done.
func GetInterface[T any](b *Broker, name string) (T, IfaceToken, bool) {
	key := ifaceKey{typ: reflect.TypeFor[T](), name: name}

	for node := b; node != nil; node = node.parent {
		node.mu.Lock()
		e, ok := node.interfaces[key]
		if ok {
			e.refcount++
			node.mu.Unlock()
			return e.instance.(T), IfaceToken{node: node, key: key}, true
		}
		node.mu.Unlock()
	}

	var zero T
	return zero, IfaceToken{}, false
}

// Release decrements the refcount acquired by GetInterface.
func Release(tok IfaceToken) error {
	if tok.node == nil {
		return ErrNotFound
	}
	tok.node.mu.Lock()
	defer tok.node.mu.Unlock()

	e, ok := tok.node.interfaces[tok.key]
	if !ok {
		return ErrNotFound
	}
	if e.refcount > 0 {
		e.refcount--
	}
	return nil
}

// Unregister removes the registration named by tok (from
// RegisterInterface). It fails with ErrBusy, returning the current
// refcount, if any GetInterface call has not yet been released.
func Unregister(tok IfaceToken) (refcount int32, err error) {
	if tok.node == nil {
		return 0, ErrNotFound
	}
	tok.node.mu.Lock()
	defer tok.node.mu.Unlock()

	e, ok := tok.node.interfaces[tok.key]
	if !ok {
		return 0, ErrNotFound
	}
	if e.refcount != 0 {
		return e.refcount, ErrBusy
	}
	delete(tok.node.interfaces, tok.key)
	return 0, nil
}

// CallbackToken identifies one handler registration, for Unsubscribe.
type CallbackToken struct {
	node *Broker
	typ  reflect.Type
	id   uuid.UUID
}

// Subscribe registers handler as a callback of type F on b. Firing (via
// Fire) on b invokes handlers registered on b only — callbacks do not
// inherit from a parent node the way interfaces and advisors do.
func Subscribe[F any](b *Broker, handler F) CallbackToken {
	typ := reflect.TypeFor[F]()
	id := uuid.New()

	b.mu.Lock()
	b.callbacks[typ] = append(b.callbacks[typ], callbackEntry{id: id, handler: handler})
	b.mu.Unlock()

	return CallbackToken{node: b, typ: typ, id: id}
}

// Unsubscribe removes a handler registered with Subscribe. A handler
// that unsubscribes itself during its own Fire dispatch only affects
// fires that start after this call returns: Fire dispatches against a
// snapshot taken at entry (see §9 open-question resolution).
func Unsubscribe(tok CallbackToken) bool {
	tok.node.mu.Lock()
	defer tok.node.mu.Unlock()

	list := tok.node.callbacks[tok.typ]
	for i, e := range list {
		if e.id == tok.id {
			tok.node.callbacks[tok.typ] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Fire invokes invoke once per handler of type F registered on b,
// in registration order, synchronously on the calling goroutine. The
// handler list is snapshotted before any handler runs.
func Fire[F any](b *Broker, invoke func(F)) {
	typ := reflect.TypeFor[F]()

	b.mu.RLock()
	snapshot := append([]callbackEntry(nil), b.callbacks[typ]...)
	b.mu.RUnlock()

	for _, e := range snapshot {
		invoke(e.handler.(F))
	}
}

// AdvisorToken identifies one advisor registration, for Withdraw.
type AdvisorToken struct {
	node *Broker
	typ  reflect.Type
	id   uuid.UUID
}

// RegisterAdvisor adds advisor to the read-mostly collection of type T
// opinion-providers on b.
func RegisterAdvisor[T any](b *Broker, advisor T) AdvisorToken {
	typ := reflect.TypeFor[T]()
	id := uuid.New()

	b.mu.Lock()
	b.advisors[typ] = append(b.advisors[typ], advisorEntry{id: id, advisor: advisor})
	b.mu.Unlock()

	return AdvisorToken{node: b, typ: typ, id: id}
}

// Withdraw removes an advisor registered with RegisterAdvisor.
func Withdraw(tok AdvisorToken) bool {
	tok.node.mu.Lock()
	defer tok.node.mu.Unlock()

	list := tok.node.advisors[tok.typ]
	for i, e := range list {
		if e.id == tok.id {
			tok.node.advisors[tok.typ] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Advisors returns an immutable snapshot of every type-T advisor
// registered on b or any ancestor of b, taken at call time: concurrent
// registration is safe but may not be reflected in an in-flight
// snapshot.
func Advisors[T any](b *Broker) []T {
	typ := reflect.TypeFor[T]()

	var out []T
	for node := b; node != nil; node = node.parent {
		node.mu.RLock()
		for _, e := range node.advisors[typ] {
			out = append(out, e.advisor.(T))
		}
		node.mu.RUnlock()
	}
	return out
}

// Name returns the arena name this node is scoped to, or "" for the
// global root.
func (b *Broker) Name() string {
	return b.name
}

// Parent returns the node's parent, or nil for the global root.
func (b *Broker) Parent() *Broker {
	return b.parent
}
