package dlna

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airbridge/internal/device"
	"airbridge/internal/eventbus"
)

func newTestService(bus *eventbus.Bus) *Service {
	return &Service{
		subs:    newSubscriptionTable(nil),
		staging: newStagingTable(),
		bus:     bus,
		logger:  slog.Default(),
	}
}

func TestActionSetAVTransportURI_TransitionsAndStagesTrack(t *testing.T) {
	bus := eventbus.New(nil)
	d := device.NewAirPlayDevice(bus, nil, "id", "Kitchen", "10.0.0.5", "HomePod")
	d.Start()
	defer d.Shutdown()
	s := newTestService(bus)

	var got eventbus.Event
	bus.Subscribe(eventbus.TypeStateChanged, d.DeviceID, func(e eventbus.Event) error {
		got = e
		return nil
	})

	args := map[string]string{
		"CurrentURI":         "http://x/track.flac",
		"CurrentURIMetaData": `<DIDL-Lite><item><dc:title>Song</dc:title><res duration="0:03:45.000">http://x/track.flac</res></item></DIDL-Lite>`,
	}
	result, err := s.actionSetAVTransportURI(d, "10.0.0.5", args)
	require.NoError(t, err)
	assert.Empty(t, result)

	assert.Equal(t, eventbus.TypeStateChanged, got.Type)
	assert.Equal(t, string(eventbus.StateTransitioning), got.Data["state"])

	track, ok := s.staging.get(d.DeviceID)
	require.True(t, ok)
	assert.Equal(t, "Song", track.Title)
	assert.Equal(t, 225.0, track.Duration)

	pb := d.PlaybackSnapshot()
	assert.Equal(t, 225.0, pb.Duration)
}

func TestActionSetAVTransportURI_SynthesizesTemporarySubscription(t *testing.T) {
	bus := eventbus.New(nil)
	d := device.NewAirPlayDevice(bus, nil, "id", "Kitchen", "10.0.0.5", "HomePod")
	d.Start()
	defer d.Shutdown()
	s := newTestService(bus)

	assert.False(t, s.subs.hasActiveSubscription(d.DeviceID, "AVTransport", "10.0.0.5"))

	_, err := s.actionSetAVTransportURI(d, "10.0.0.5", map[string]string{"CurrentURI": "http://x/track.flac"})
	require.NoError(t, err)

	assert.True(t, s.subs.hasActiveSubscription(d.DeviceID, "AVTransport", "10.0.0.5"))

	// a command from the now-authorized caller no longer faults 701.
	require.NoError(t, s.requireActiveClient(d, "10.0.0.5"))
}

func TestActionSetAVTransportURI_EmptyURIFails(t *testing.T) {
	bus := eventbus.New(nil)
	d := device.NewAirPlayDevice(bus, nil, "id", "Kitchen", "10.0.0.5", "HomePod")
	d.Start()
	defer d.Shutdown()
	s := newTestService(bus)

	_, err := s.actionSetAVTransportURI(d, "10.0.0.5", map[string]string{})
	assert.ErrorIs(t, err, errInvalidArgs)
}

func TestActionSeek_OutOfRangeFaultsOnceDurationKnown(t *testing.T) {
	bus := eventbus.New(nil)
	d := device.NewAirPlayDevice(bus, nil, "id", "Kitchen", "10.0.0.5", "HomePod")
	d.Start()
	defer d.Shutdown()
	s := newTestService(bus)

	d.SetActiveClient("10.0.0.5", "")
	s.subs.subscribeTemporary(d.DeviceID, "AVTransport", "10.0.0.5", "http://x/track.flac")
	d.SetPlaybackDuration(120)

	_, err := s.actionSeek(d, "10.0.0.5", map[string]string{"Unit": "REL_TIME", "Target": "0:05:00"})
	assert.ErrorIs(t, err, errSeekOutOfRange)

	result, err := s.actionSeek(d, "10.0.0.5", map[string]string{"Unit": "REL_TIME", "Target": "0:01:00"})
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestActionSeek_UnauthorizedCallerFaults701(t *testing.T) {
	bus := eventbus.New(nil)
	d := device.NewAirPlayDevice(bus, nil, "id", "Kitchen", "10.0.0.5", "HomePod")
	d.Start()
	defer d.Shutdown()
	s := newTestService(bus)

	_, err := s.actionSeek(d, "10.0.0.3", map[string]string{"Target": "0:01:00"})
	assert.ErrorIs(t, err, errNotAuthorized)
}
