package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const testPID = 3

func TestUnassignedPlayerFallsBackToDefaultGroup(t *testing.T) {
	s := NewService()
	s.Grant(GroupDefault, "chat_pub")

	assert.Equal(t, GroupDefault, s.GroupOf(testPID))
	assert.True(t, s.Can(testPID, "chat_pub"))
	assert.False(t, s.Can(testPID, "cmd_shutdown"))
}

func TestSetPlayerGroupGrantsItsCapabilities(t *testing.T) {
	s := NewService()
	s.Grant("staff", "cmd_shutdown")
	s.SetPlayerGroup(testPID, "staff")

	assert.True(t, s.Can(testPID, "cmd_shutdown"))
}

func TestRevokeRemovesCapabilityFromGroup(t *testing.T) {
	s := NewService()
	s.Grant("staff", "cmd_shutdown")
	s.SetPlayerGroup(testPID, "staff")
	require := assert.New(t)
	require.True(s.Can(testPID, "cmd_shutdown"))

	s.Revoke("staff", "cmd_shutdown")
	require.False(s.Can(testPID, "cmd_shutdown"))
}

func TestClearPlayerGroupRevertsToDefault(t *testing.T) {
	s := NewService()
	s.Grant("staff", "cmd_shutdown")
	s.Grant(GroupDefault, "chat_pub")
	s.SetPlayerGroup(testPID, "staff")

	s.ClearPlayerGroup(testPID)
	assert.Equal(t, GroupDefault, s.GroupOf(testPID))
	assert.True(t, s.Can(testPID, "chat_pub"))
	assert.False(t, s.Can(testPID, "cmd_shutdown"))
}
