package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airbridge/internal/eventbus"
)

func TestGenerateDeviceID_ServerSpeakerIsFixed(t *testing.T) {
	assert.Equal(t, ServerSpeakerName, GenerateDeviceID("anything", TypeServerSpeaker))
}

func TestGenerateDeviceID_AirPlayIsStableHash(t *testing.T) {
	a := GenerateDeviceID("AA:BB:CC@Kitchen", TypeAirPlay)
	b := GenerateDeviceID("AA:BB:CC@Kitchen", TypeAirPlay)
	c := GenerateDeviceID("DD:EE:FF@Lounge", TypeAirPlay)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestVirtualDevice_PlayPublishesStateChanged(t *testing.T) {
	bus := eventbus.New(nil)
	d := NewAirPlayDevice(bus, nil, "id", "Kitchen", "10.0.0.5", "HomePod")
	d.Start()
	defer d.Shutdown()

	var got eventbus.Event
	bus.Subscribe(eventbus.TypeStateChanged, d.DeviceID, func(e eventbus.Event) error {
		got = e
		return nil
	})

	bus.Publish(eventbus.CmdPlay(d.DeviceID, "http://example/track.mp3", 0, nil))

	assert.Equal(t, eventbus.TypeStateChanged, got.Type)
	assert.Equal(t, string(eventbus.StatePlaying), got.Data["state"])
	assert.Equal(t, eventbus.StatePlaying, d.Playback.State)
	assert.Equal(t, "http://example/track.mp3", d.Playback.URL)
}

func TestVirtualDevice_PauseKeepsPlaybackPosition(t *testing.T) {
	bus := eventbus.New(nil)
	d := NewAirPlayDevice(bus, nil, "id", "Kitchen", "", "")
	d.Start()
	defer d.Shutdown()

	bus.Publish(eventbus.CmdPlay(d.DeviceID, "http://x", 10, nil))
	require.Equal(t, eventbus.StatePlaying, d.Playback.State)

	bus.Publish(eventbus.CmdPause(d.DeviceID))
	assert.Equal(t, eventbus.StatePaused, d.Playback.State)
	assert.GreaterOrEqual(t, d.Playback.Position, 10.0)
}

func TestVirtualDevice_SetVolumeClampsAndPublishes(t *testing.T) {
	bus := eventbus.New(nil)
	d := NewAirPlayDevice(bus, nil, "id", "Kitchen", "", "")
	d.Start()
	defer d.Shutdown()

	var got eventbus.Event
	bus.Subscribe(eventbus.TypeVolumeChanged, d.DeviceID, func(e eventbus.Event) error {
		got = e
		return nil
	})

	bus.Publish(eventbus.CmdSetVolume(d.DeviceID, 150))
	assert.Equal(t, 100, d.Volume)
	assert.Equal(t, 100, got.Data["volume"])
}

func TestVirtualDevice_SetDSPMergesOntoExistingConfig(t *testing.T) {
	bus := eventbus.New(nil)
	d := NewAirPlayDevice(bus, nil, "id", "Kitchen", "", "")
	d.Start()
	defer d.Shutdown()

	bus.Publish(eventbus.CmdSetDSP(d.DeviceID, true, map[string]any{"stereo_width": 1.5}))

	assert.True(t, d.DSPEnabled)
	assert.Equal(t, 1.5, d.DSPConfig.StereoWidth)
	assert.False(t, d.DSPConfig.UseCompression) // untouched field keeps its default
}

func TestVirtualDevice_ResetDSPRestoresDefaults(t *testing.T) {
	bus := eventbus.New(nil)
	d := NewAirPlayDevice(bus, nil, "id", "Kitchen", "", "")
	d.Start()
	defer d.Shutdown()

	bus.Publish(eventbus.CmdSetDSP(d.DeviceID, true, map[string]any{"stereo_width": 1.9}))
	bus.Publish(eventbus.CmdResetDSP(d.DeviceID))

	assert.False(t, d.DSPEnabled)
	assert.Equal(t, 1.0, d.DSPConfig.StereoWidth)
}

func TestVirtualDevice_CurrentPositionExtrapolatesWhilePlaying(t *testing.T) {
	bus := eventbus.New(nil)
	d := NewAirPlayDevice(bus, nil, "id", "Kitchen", "", "")
	d.Start()
	defer d.Shutdown()

	bus.Publish(eventbus.CmdPlay(d.DeviceID, "http://x", 5, nil))
	pos := d.CurrentPosition()
	assert.GreaterOrEqual(t, pos, 5.0)
}

func TestVirtualDevice_ActiveClientBinding(t *testing.T) {
	bus := eventbus.New(nil)
	d := NewAirPlayDevice(bus, nil, "id", "Kitchen", "", "")

	d.SetActiveClient("192.168.1.20", "uuid:sub-1")
	got := d.GetActiveClient()
	assert.Equal(t, "192.168.1.20", got.ClientIP)
	assert.Equal(t, "uuid:sub-1", got.SID)
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatTime(0))
	assert.Equal(t, "00:01:05", FormatTime(65))
	assert.Equal(t, "01:02:03", FormatTime(3723))
	assert.Equal(t, "00:00:00", FormatTime(-5))
}

func TestParseTime(t *testing.T) {
	assert.Equal(t, 3723.0, ParseTime("1:02:03"))
	assert.Equal(t, 65.0, ParseTime("1:05"))
	assert.Equal(t, 42.0, ParseTime("42"))
	assert.Equal(t, 0.0, ParseTime("not-a-time"))
}

func TestFormatParseTimeRoundTrip(t *testing.T) {
	for _, seconds := range []float64{0, 1, 59, 60, 3599, 3600, 86399} {
		assert.Equal(t, seconds, ParseTime(FormatTime(seconds)))
	}
}
