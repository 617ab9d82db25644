package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChat interface {
	Say(msg string)
}

type fakeChatImpl struct{ sent []string }

func (f *fakeChatImpl) Say(msg string) { f.sent = append(f.sent, msg) }

func TestRegisterAndResolveInterface(t *testing.T) {
	root := NewRoot()
	impl := &fakeChatImpl{}

	_, err := RegisterInterface[fakeChat](root, impl, "")
	require.NoError(t, err)

	got, tok, ok := GetInterface[fakeChat](root, "")
	require.True(t, ok)
	got.Say("hi")
	assert.Equal(t, []string{"hi"}, impl.sent)

	require.NoError(t, Release(tok))
}

func TestArenaLookupFallsThroughToParent(t *testing.T) {
	root := NewRoot()
	arena := root.NewArena("duelarena")
	impl := &fakeChatImpl{}

	_, err := RegisterInterface[fakeChat](root, impl, "")
	require.NoError(t, err)

	_, tok, ok := GetInterface[fakeChat](arena, "")
	require.True(t, ok)
	require.NoError(t, Release(tok))
}

// Invariant #2: unregister returns 0 iff every get/release pair is balanced.
func TestUnregisterFailsWhileHeld(t *testing.T) {
	root := NewRoot()
	impl := &fakeChatImpl{}

	regTok, err := RegisterInterface[fakeChat](root, impl, "")
	require.NoError(t, err)

	_, getTok, ok := GetInterface[fakeChat](root, "")
	require.True(t, ok)

	refcount, err := Unregister(regTok)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, int32(1), refcount)

	require.NoError(t, Release(getTok))

	refcount, err = Unregister(regTok)
	assert.NoError(t, err)
	assert.Equal(t, int32(0), refcount)
}

// E4 — interface ref leak: a holder that never releases keeps the
// interface registered; unregister reports the outstanding refcount.
func TestUnregisterReportsLeakedRefcount(t *testing.T) {
	root := NewRoot()
	impl := &fakeChatImpl{}

	regTok, err := RegisterInterface[fakeChat](root, impl, "")
	require.NoError(t, err)

	_, _, ok := GetInterface[fakeChat](root, "")
	require.True(t, ok) // held and never released

	refcount, err := Unregister(regTok)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, int32(1), refcount)

	_, _, stillRegistered := GetInterface[fakeChat](root, "")
	assert.True(t, stillRegistered)
}

func TestDoubleRegisterNamedInterfaceFails(t *testing.T) {
	root := NewRoot()
	_, err := RegisterInterface[fakeChat](root, &fakeChatImpl{}, "primary")
	require.NoError(t, err)

	_, err = RegisterInterface[fakeChat](root, &fakeChatImpl{}, "primary")
	assert.Error(t, err)
}

type playerJoined func(pid int)

func TestCallbackFiresInRegistrationOrder(t *testing.T) {
	root := NewRoot()
	var order []int

	Subscribe[playerJoined](root, func(pid int) { order = append(order, pid) })
	Subscribe[playerJoined](root, func(pid int) { order = append(order, pid*10) })

	Fire[playerJoined](root, func(h playerJoined) { h(1) })

	assert.Equal(t, []int{1, 10}, order)
}

func TestCallbackFiringIsScopedNotInherited(t *testing.T) {
	root := NewRoot()
	arena := root.NewArena("flagrun")

	var globalFired, arenaFired bool
	Subscribe[playerJoined](root, func(pid int) { globalFired = true })
	Subscribe[playerJoined](arena, func(pid int) { arenaFired = true })

	Fire[playerJoined](arena, func(h playerJoined) { h(1) })

	assert.True(t, arenaFired)
	assert.False(t, globalFired, "firing on an arena node must not invoke globally registered handlers")
}

func TestUnsubscribeDuringFireAffectsOnlySubsequentFires(t *testing.T) {
	root := NewRoot()
	var calls int
	var tok CallbackToken

	tok = Subscribe[playerJoined](root, func(pid int) {
		calls++
		Unsubscribe(tok)
	})

	Fire[playerJoined](root, func(h playerJoined) { h(1) })
	assert.Equal(t, 1, calls)

	Fire[playerJoined](root, func(h playerJoined) { h(1) })
	assert.Equal(t, 1, calls, "unsubscribe mid-fire must take effect for the next fire")
}

type killAdvisor interface {
	ShouldTransferFlag() bool
}

type alwaysYes struct{}

func (alwaysYes) ShouldTransferFlag() bool { return true }

func TestAdvisorSnapshotMergesAncestors(t *testing.T) {
	root := NewRoot()
	arena := root.NewArena("flagrun")

	RegisterAdvisor[killAdvisor](root, alwaysYes{})
	RegisterAdvisor[killAdvisor](arena, alwaysYes{})

	snap := Advisors[killAdvisor](arena)
	assert.Len(t, snap, 2)

	rootOnly := Advisors[killAdvisor](root)
	assert.Len(t, rootOnly, 1)
}
