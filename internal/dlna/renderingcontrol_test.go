package dlna

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airbridge/internal/device"
	"airbridge/internal/eventbus"
)

func TestActionSetVolume_UnauthorizedCallerFaults402(t *testing.T) {
	bus := eventbus.New(nil)
	d := device.NewAirPlayDevice(bus, nil, "id", "Kitchen", "10.0.0.5", "HomePod")
	d.Start()
	defer d.Shutdown()
	s := newTestService(bus)
	d.SetActiveClient("10.0.0.5", "")
	s.subs.subscribeTemporary(d.DeviceID, "AVTransport", "10.0.0.5", "http://x/track.flac")

	_, err := s.actionSetVolume(d, "10.0.0.3", map[string]string{"DesiredVolume": "30"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errNotAuthorizedRC)
	assert.Equal(t, 402, toUPnPError(err).Code)
}

func TestActionSetMute_UnauthorizedCallerFaults402(t *testing.T) {
	bus := eventbus.New(nil)
	d := device.NewAirPlayDevice(bus, nil, "id", "Kitchen", "10.0.0.5", "HomePod")
	d.Start()
	defer d.Shutdown()
	s := newTestService(bus)
	d.SetActiveClient("10.0.0.5", "")
	s.subs.subscribeTemporary(d.DeviceID, "AVTransport", "10.0.0.5", "http://x/track.flac")

	_, err := s.actionSetMute(d, "10.0.0.3", map[string]string{"DesiredMute": "1"})
	assert.ErrorIs(t, err, errNotAuthorizedRC)
}

func TestActionSetVolume_AuthorizedCallerSucceeds(t *testing.T) {
	bus := eventbus.New(nil)
	d := device.NewAirPlayDevice(bus, nil, "id", "Kitchen", "10.0.0.5", "HomePod")
	d.Start()
	defer d.Shutdown()
	s := newTestService(bus)
	d.SetActiveClient("10.0.0.5", "")
	s.subs.subscribeTemporary(d.DeviceID, "AVTransport", "10.0.0.5", "http://x/track.flac")

	result, err := s.actionSetVolume(d, "10.0.0.5", map[string]string{"DesiredVolume": "30"})
	require.NoError(t, err)
	assert.Empty(t, result)
}
