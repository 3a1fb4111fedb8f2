package fleet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeControls_NoSelection(t *testing.T) {
	c := ComputeControls(nil, nil, nil, false)
	require.False(t, c.CanStart)
	require.False(t, c.CanReplay)
	require.False(t, c.CanStop)
	require.Equal(t, "Start", c.StartLabel)
}

func TestComputeControls_IdleNeedsActivity(t *testing.T) {
	selected := []DeviceView{view("d1", Online, StateIdle)}
	require.False(t, ComputeControls(selected, nil, testCatalog, false).CanStart)

	c := ComputeControls(selected, &ActivitySelection{ActivityID: "a1", VideoID: strPtr("v2")}, testCatalog, false)
	require.True(t, c.CanStart)
	require.True(t, c.CanReplay)
	require.Equal(t, 1, c.QueuedItems)

	c = ComputeControls(selected, &ActivitySelection{ActivityID: "a1", VideoID: strPtr("v1")}, testCatalog, false)
	require.Equal(t, 2, c.QueuedItems)
}

func TestComputeControls_ExistingSessionPlays(t *testing.T) {
	c := ComputeControls([]DeviceView{view("d1", Online, StateReady), view("d2", Online, StateIdle)}, nil, nil, false)
	require.True(t, c.CanStart)
	require.Equal(t, "Play", c.StartLabel)
	require.False(t, c.CanReplay)
	require.Equal(t, 1, c.QueuedItems)

	c = ComputeControls([]DeviceView{view("d1", Online, StatePending)}, nil, nil, false)
	require.False(t, c.CanStart)
	require.Equal(t, "Play", c.StartLabel)
}

func TestComputeControls_PauseResumeNeedVideo(t *testing.T) {
	running := view("d1", Online, StateRunning)
	running.IsVideoRequired = intPtr(0)
	c := ComputeControls([]DeviceView{running}, nil, nil, false)
	require.False(t, c.CanPause)
	require.True(t, c.CanStop)

	running.IsVideoRequired = intPtr(1)
	require.True(t, ComputeControls([]DeviceView{running}, nil, nil, false).CanPause)

	paused := view("d2", Online, StatePaused)
	c = ComputeControls([]DeviceView{paused}, nil, nil, false)
	require.True(t, c.CanResume)
	require.True(t, c.CanStop)
}

func TestComputeControls_LoadingDisablesEverything(t *testing.T) {
	c := ComputeControls([]DeviceView{view("d1", Online, StateRunning)}, nil, nil, true)
	require.False(t, c.CanStop)
	require.False(t, c.CanPause)
	require.True(t, c.Loading)
}
