package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMaidenhead_KnownPoint(t *testing.T) {
	// Newington CT, the ARRL HQ grid square commonly used as a reference.
	grid := ToMaidenhead(41.714, -72.727)
	assert.Equal(t, "FN31pr", grid)
}

func TestFromMaidenhead_RoundTripsNear(t *testing.T) {
	lat, lon, err := FromMaidenhead("FN31pr")
	require.NoError(t, err)
	back := ToMaidenhead(lat, lon)
	assert.Equal(t, "FN31pr", back)
}

func TestFromMaidenhead_RejectsBadLength(t *testing.T) {
	_, _, err := FromMaidenhead("FN3")
	assert.Error(t, err)
}

func TestDewPointF(t *testing.T) {
	dp, ok := DewPointF(70, 50)
	require.True(t, ok)
	assert.InDelta(t, 50.6, dp, 1.0)

	_, ok = DewPointF(70, 0)
	assert.False(t, ok)
}

func TestDistanceKM_ZeroForSamePoint(t *testing.T) {
	assert.InDelta(t, 0.0, DistanceKM(41.7, -72.7, 41.7, -72.7), 0.001)
}
