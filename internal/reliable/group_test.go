package reliable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupPacketsRoundTrips(t *testing.T) {
	packets := [][]byte{
		[]byte("ping"),
		[]byte("pos-update"),
		[]byte("chat hello there"),
	}

	grouped := GroupPackets(packets)
	require.Len(t, grouped, 1)
	assert.Equal(t, CorePrefix, grouped[0][0])
	assert.Equal(t, byte(CoreGrouped), grouped[0][1])

	out := UngroupPacket(grouped[0][2:])
	require.Len(t, out, 3)
	for i, p := range packets {
		assert.Equal(t, p, out[i])
	}
}

func TestGroupPacketsSplitsWhenOverCap(t *testing.T) {
	big := make([]byte, 250)
	packets := [][]byte{big, big, big}

	grouped := GroupPackets(packets)
	assert.Greater(t, len(grouped), 1, "three 250-byte packets should not fit in one 510-byte envelope")

	var total int
	for _, g := range grouped {
		out := UngroupPacket(g[2:])
		total += len(out)
	}
	assert.Equal(t, 3, total)
}

func TestGroupPacketsPassesOversizePacketsThrough(t *testing.T) {
	oversize := make([]byte, MaxGroupedPayload+50)
	small := []byte("ack")

	grouped := GroupPackets([][]byte{small, oversize})
	require.Len(t, grouped, 2)
	assert.Equal(t, oversize, grouped[1], "an oversize packet passes through ungrouped")
}
