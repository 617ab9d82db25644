package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestManagerGlobalFallback(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "global.yaml", "Team:\n  MaxPerArena: 4\n  Name: Titan\n")

	m, err := NewManager(dir, nil)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 4, m.GetInt("", "Team", "MaxPerArena", -1))
	assert.Equal(t, "Titan", m.GetStr("", "Team", "Name", ""))
	assert.Equal(t, 99, m.GetInt("", "Team", "Missing", 99))
}

func TestManagerArenaOverridesGlobal(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "global.yaml", "Team:\n  MaxPerArena: 4\n")
	writeConfigFile(t, dir, "duelarena.yaml", "Team:\n  MaxPerArena: 2\n")

	m, err := NewManager(dir, nil)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 2, m.GetInt("duelarena", "Team", "MaxPerArena", -1))
	assert.Equal(t, 4, m.GetInt("otherarena", "Team", "MaxPerArena", -1))
	assert.Equal(t, 4, m.GetInt("", "Team", "MaxPerArena", -1))
}

func TestManagerEnumDefaultOnUnknownValue(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "global.yaml", "Chat:\n  Mode: bogus\n")

	m, err := NewManager(dir, nil)
	require.NoError(t, err)
	defer m.Close()

	table := map[string]int{"public": 1, "team": 2}
	assert.Equal(t, 1, GetEnum(m, "", "Chat", "Mode", table, 1))
}

func TestManagerReloadFiresOnChange(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "global.yaml", "Team:\n  MaxPerArena: 4\n")

	m, err := NewManager(dir, nil)
	require.NoError(t, err)
	defer m.Close()

	fired := make(chan struct{}, 1)
	m.OnChange(func() { fired <- struct{}{} })

	writeConfigFile(t, dir, "global.yaml", "Team:\n  MaxPerArena: 8\n")

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("OnChange callback was not fired after external edit")
	}

	assert.Eventually(t, func() bool {
		return m.GetInt("", "Team", "MaxPerArena", -1) == 8
	}, time.Second, 10*time.Millisecond)
}
