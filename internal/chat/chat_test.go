package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/subzone/zonecore/internal/capability"
	"github.com/subzone/zonecore/internal/extradata"
	"github.com/subzone/zonecore/internal/player"
)

func newTestPlayer() (*player.Player, player.PID) {
	tbl := player.NewTable(extradata.NewRegistry[player.Player]())
	p := tbl.Accept(nil, player.ClientContinuum, 0)
	return p, p.PID
}

func TestDispatchRecognizesQuestionAndStarPrefixes(t *testing.T) {
	r := NewRegistry(nil, nil)
	p, _ := newTestPlayer()

	var got string
	r.AddGlobal("go", func(ctx CommandContext) { got = ctx.Name })

	assert.True(t, r.Dispatch(p, "pub", TargetArena, "?go arena1"))
	assert.Equal(t, "go", got)

	got = ""
	assert.True(t, r.Dispatch(p, "pub", TargetArena, "*go arena2"))
	assert.Equal(t, "go", got)
}

func TestDispatchReturnsFalseForPlainChat(t *testing.T) {
	r := NewRegistry(nil, nil)
	p, _ := newTestPlayer()
	assert.False(t, r.Dispatch(p, "pub", TargetArena, "hello there"))
}

func TestArenaHandlerShadowsGlobalHandler(t *testing.T) {
	r := NewRegistry(nil, nil)
	p, _ := newTestPlayer()

	var which string
	r.AddGlobal("info", func(ctx CommandContext) { which = "global" })
	r.AddArena("pub", "info", func(ctx CommandContext) { which = "arena" })

	r.Dispatch(p, "pub", TargetArena, "?info")
	assert.Equal(t, "arena", which)

	which = ""
	r.Dispatch(p, "other", TargetArena, "?info")
	assert.Equal(t, "global", which)
}

func TestUnknownCommandForwardsToDefaultHandler(t *testing.T) {
	r := NewRegistry(nil, nil)
	p, _ := newTestPlayer()

	var fellThrough string
	r.SetDefaultHandler(func(ctx CommandContext) { fellThrough = ctx.Name })

	assert.True(t, r.Dispatch(p, "pub", TargetArena, "?unknownthing foo"))
	assert.Equal(t, "unknownthing", fellThrough)
}

func TestBackslashPrefixForcesDefaultHandlerEvenWhenLocalExists(t *testing.T) {
	r := NewRegistry(nil, nil)
	p, _ := newTestPlayer()

	localCalled := false
	r.AddGlobal("setship", func(ctx CommandContext) { localCalled = true })

	var fellThrough string
	r.SetDefaultHandler(func(ctx CommandContext) { fellThrough = ctx.Name })

	assert.True(t, r.Dispatch(p, "pub", TargetArena, `\setship 1`))
	assert.False(t, localCalled)
	assert.Equal(t, "setship", fellThrough)
}

func TestUnloggedCommandRedactsParamsButStillDispatches(t *testing.T) {
	r := NewRegistry(nil, nil)
	p, _ := newTestPlayer()
	r.MarkUnlogged("password")

	var gotParams string
	r.AddGlobal("password", func(ctx CommandContext) { gotParams = ctx.Params })

	assert.True(t, r.Dispatch(p, "pub", TargetArena, "?password hunter2"))
	assert.Equal(t, "hunter2", gotParams, "the handler still receives the real params")
	assert.True(t, r.isUnlogged("password"))
}

func TestCapabilityGatedCommandFallsThroughWhenPlayerLacksIt(t *testing.T) {
	caps := capability.NewService()
	caps.Grant("staff", "cmd_shutdown")

	r := NewRegistry(nil, caps)
	p, _ := newTestPlayer()

	var shutdownCalled bool
	var fellThrough string
	r.AddGlobal("shutdown", func(ctx CommandContext) { shutdownCalled = true })
	r.RequireCapability("shutdown", "cmd_shutdown")
	r.SetDefaultHandler(func(ctx CommandContext) { fellThrough = ctx.Name })

	assert.True(t, r.Dispatch(p, "pub", TargetArena, "?shutdown"))
	assert.False(t, shutdownCalled)
	assert.Equal(t, "shutdown", fellThrough)

	caps.SetPlayerGroup(p.PID, "staff")
	shutdownCalled, fellThrough = false, ""
	assert.True(t, r.Dispatch(p, "pub", TargetArena, "?shutdown"))
	assert.True(t, shutdownCalled)
	assert.Equal(t, "", fellThrough)
}

func TestMaskTableArenaMaskGatesEvenWithoutPlayerRestriction(t *testing.T) {
	mt := NewMaskTable()
	_, pid := newTestPlayer()

	mt.SetArenaMask("pub", MaskFor(TypePub))
	assert.True(t, mt.Allows(pid, "pub", TypePub, time.Now()))
	assert.False(t, mt.Allows(pid, "pub", TypeChat, time.Now()))
}

func TestMaskTablePlayerMaskIntersectsWithArenaMask(t *testing.T) {
	mt := NewMaskTable()
	_, pid := newTestPlayer()

	mt.SetArenaMask("pub", MaskAll)
	mt.SetPlayerMask(pid, MaskFor(TypePub), Expiry{})
	assert.True(t, mt.Allows(pid, "pub", TypePub, time.Now()))
	assert.False(t, mt.Allows(pid, "pub", TypeChat, time.Now()))
}

func TestMaskTableSessionExpiryClearedOnArenaChange(t *testing.T) {
	mt := NewMaskTable()
	_, pid := newTestPlayer()

	mt.SetPlayerMask(pid, MaskFor(TypePub), Expiry{Session: true})
	assert.False(t, mt.Allows(pid, "pub", TypeChat, time.Now()))

	mt.OnArenaChange(pid)
	assert.True(t, mt.Allows(pid, "pub", TypeChat, time.Now()), "session restriction must be cleared on arena change")
}

func TestMaskTableTimeoutExpiryViaSweep(t *testing.T) {
	mt := NewMaskTable()
	_, pid := newTestPlayer()

	past := time.Now().Add(-time.Second)
	mt.SetPlayerMask(pid, MaskFor(TypePub), Expiry{At: past})

	assert.True(t, mt.Allows(pid, "pub", TypeChat, time.Now()), "expired restriction must not gate")

	mt.mu.Lock()
	_, stillPresent := mt.perPlayer[pid]
	mt.mu.Unlock()
	assert.True(t, stillPresent, "Allows alone must not evict; Sweep does")

	mt.Sweep(time.Now())
	mt.mu.Lock()
	_, stillPresent = mt.perPlayer[pid]
	mt.mu.Unlock()
	assert.False(t, stillPresent)
}
