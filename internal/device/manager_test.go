package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airbridge/internal/dsp"
	"airbridge/internal/eventbus"
	"airbridge/internal/output"
)

type fakeOutput struct{}

func (fakeOutput) Play(ctx context.Context, url string, position float64) error { return nil }
func (fakeOutput) Stop() error                                                 { return nil }
func (fakeOutput) Pause() error                                                { return nil }
func (fakeOutput) Seek(ctx context.Context, position float64) error            { return nil }
func (fakeOutput) SetVolume(volume int) error                                  { return nil }
func (fakeOutput) SetMute(muted bool) error                                    { return nil }
func (fakeOutput) IsRunning() bool                                             { return false }
func (fakeOutput) CurrentPosition() (float64, bool)                            { return 0, false }

func newTestManager() *Manager {
	bus := eventbus.New(nil)
	m := NewManager(ManagerConfig{}, bus, nil, nil)
	return m
}

func TestManager_AirPlayFoundCreatesDevice(t *testing.T) {
	m := newTestManager()
	var added []eventbus.Event
	m.bus.Subscribe(eventbus.TypeDeviceAdded, "", func(e eventbus.Event) error {
		added = append(added, e)
		return nil
	})

	m.onAirPlayFound(DiscoveredDevice{Identifier: "AA:BB@Kitchen", Name: "Kitchen", Address: "10.0.0.5"})

	require.Len(t, added, 1)
	d := m.GetDeviceByAirPlayID("AA:BB@Kitchen")
	require.NotNil(t, d)
	assert.Equal(t, "Kitchen", d.Name)
	assert.True(t, d.Connected)
}

func TestManager_AirPlayFoundTwiceUpdatesInsteadOfDuplicating(t *testing.T) {
	m := newTestManager()
	m.onAirPlayFound(DiscoveredDevice{Identifier: "id-1", Name: "Kitchen", Address: "10.0.0.5"})
	m.onAirPlayFound(DiscoveredDevice{Identifier: "id-1", Name: "Kitchen", Address: "10.0.0.9"})

	assert.Len(t, m.AllDevices(), 1)
	d := m.GetDeviceByAirPlayID("id-1")
	require.NotNil(t, d)
	assert.Equal(t, "10.0.0.9", d.Address)
}

func TestManager_AirPlayLostMarksDisconnected(t *testing.T) {
	m := newTestManager()
	m.onAirPlayFound(DiscoveredDevice{Identifier: "id-1", Name: "Kitchen"})

	var got eventbus.Event
	m.bus.Subscribe(eventbus.TypeDeviceDisconnected, "", func(e eventbus.Event) error {
		got = e
		return nil
	})

	m.onAirPlayLost("id-1")

	d := m.GetDeviceByAirPlayID("id-1")
	require.NotNil(t, d)
	assert.False(t, d.Connected)
	assert.Equal(t, eventbus.TypeDeviceDisconnected, got.Type)
}

func TestManager_OfflineThresholdRemovesDevice(t *testing.T) {
	m := newTestManager()
	m.onAirPlayFound(DiscoveredDevice{Identifier: "id-1", Name: "Kitchen"})

	var removed []eventbus.Event
	m.bus.Subscribe(eventbus.TypeDeviceRemoved, "", func(e eventbus.Event) error {
		removed = append(removed, e)
		return nil
	})

	err := m.onOfflineThresholdReached(eventbus.DeviceOfflineThresholdReached("id-1"))
	require.NoError(t, err)

	assert.Nil(t, m.GetDeviceByAirPlayID("id-1"))
	assert.Len(t, removed, 1)
}

func TestManager_OfflineThresholdStopsPlayingDeviceFirst(t *testing.T) {
	m := newTestManager()
	m.onAirPlayFound(DiscoveredDevice{Identifier: "id-1", Name: "Kitchen"})
	d := m.GetDeviceByAirPlayID("id-1")
	require.NotNil(t, d)
	d.Playback.State = eventbus.StatePlaying

	var stopped bool
	m.bus.Subscribe(eventbus.TypeStop, d.DeviceID, func(eventbus.Event) error {
		stopped = true
		return nil
	})

	require.NoError(t, m.onOfflineThresholdReached(eventbus.DeviceOfflineThresholdReached("id-1")))
	assert.True(t, stopped)
}

func TestManager_AttachOutputInvokesFactory(t *testing.T) {
	m := newTestManager()
	var calledWith *VirtualDevice
	m.SetOutputFactory(func(d *VirtualDevice) (output.Output, *dsp.Graph, error) {
		calledWith = d
		return fakeOutput{}, dsp.NewGraph(44100, 2), nil
	})

	m.onAirPlayFound(DiscoveredDevice{Identifier: "id-1", Name: "Kitchen"})

	d := m.GetDeviceByAirPlayID("id-1")
	require.NotNil(t, d)
	assert.Same(t, d, calledWith)
	assert.NotNil(t, d.out)
	assert.NotNil(t, d.graph)
}

func TestManager_GetDeviceByUUID(t *testing.T) {
	m := newTestManager()
	m.onAirPlayFound(DiscoveredDevice{Identifier: "id-1", Name: "Kitchen"})
	d := m.GetDeviceByAirPlayID("id-1")
	require.NotNil(t, d)

	found := m.GetDeviceByUUID(d.DLNAUUID)
	assert.Same(t, d, found)
}
