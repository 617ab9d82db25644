package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/subzone/zonecore/internal/extradata"
)

func TestAcceptAssignsIncreasingPIDs(t *testing.T) {
	tbl := NewTable(extradata.NewRegistry[Player]())

	p1 := tbl.Accept(nil, ClientContinuum, 0)
	p2 := tbl.Accept(nil, ClientContinuum, 0)

	assert.Equal(t, PID(0), p1.PID)
	assert.Equal(t, PID(1), p2.PID)
	assert.Equal(t, StatusConnected, p1.Status)
}

func TestPIDReusedOnlyAfterTeardown(t *testing.T) {
	tbl := NewTable(extradata.NewRegistry[Player]())

	p1 := tbl.Accept(nil, ClientContinuum, 0)
	p2 := tbl.Accept(nil, ClientContinuum, 0)
	assert.NotEqual(t, p1.PID, p2.PID)

	tbl.Teardown(p1)
	p3 := tbl.Accept(nil, ClientContinuum, 0)
	assert.Equal(t, p1.PID, p3.PID, "freed pid should be reused before minting a new one")

	p4 := tbl.Accept(nil, ClientContinuum, 0)
	assert.NotEqual(t, p2.PID, p4.PID)
}

func TestTeardownRemovesFromTable(t *testing.T) {
	tbl := NewTable(extradata.NewRegistry[Player]())
	p := tbl.Accept(nil, ClientContinuum, 0)

	tbl.Teardown(p)

	_, ok := tbl.Get(p.PID)
	assert.False(t, ok)
	assert.Equal(t, 0, tbl.Count())
}

func TestExtraDataSlotPerPlayer(t *testing.T) {
	reg := extradata.NewRegistry[Player]()
	key := extradata.Allocate(reg, func() int { return 0 }, nil, nil)

	tbl := NewTable(reg)
	p1 := tbl.Accept(nil, ClientContinuum, 0)
	p2 := tbl.Accept(nil, ClientContinuum, 0)

	Set(p1, key, 7)
	assert.Equal(t, 7, Get(p1, key))
	assert.Equal(t, 0, Get(p2, key))
}
