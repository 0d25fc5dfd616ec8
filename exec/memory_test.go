package exec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryMonitorSamplesNonZeroRSS(t *testing.T) {
	mon, err := NewMemoryMonitor()
	require.NoError(t, err)
	rss, err := mon.RSSBytes()
	require.NoError(t, err)
	require.Greater(t, rss, uint64(0))
}

func TestMemoryMonitorExceedsRespectsZeroLimit(t *testing.T) {
	mon, err := NewMemoryMonitor()
	require.NoError(t, err)
	over, err := mon.Exceeds(0)
	require.NoError(t, err)
	require.False(t, over, "a zero limit disables the check")
}

func TestMemoryMonitorExceedsTripsOnTinyLimit(t *testing.T) {
	mon, err := NewMemoryMonitor()
	require.NoError(t, err)
	over, err := mon.Exceeds(1)
	require.NoError(t, err)
	require.True(t, over, "any running process' RSS is well over 1 byte")
}
