package output

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAirPlayClient struct {
	connected   bool
	volumes     []int
	stopped     int
	playedWith  AudioSource
	connectErr  error
}

func (f *fakeAirPlayClient) Connect(ctx context.Context, scanIdentifier string) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}
func (f *fakeAirPlayClient) Disconnect() error { f.connected = false; return nil }
func (f *fakeAirPlayClient) PlayAudioSource(source AudioSource) error {
	f.playedWith = source
	return nil
}
func (f *fakeAirPlayClient) Stop() error             { f.stopped++; return nil }
func (f *fakeAirPlayClient) SetVolume(volume int) error { f.volumes = append(f.volumes, volume); return nil }
func (f *fakeAirPlayClient) Connected() bool         { return f.connected }

func TestAirPlaySender_NoClientConfigured(t *testing.T) {
	s := NewAirPlaySender(AirPlaySenderConfig{DeviceID: "dev-1"}, nil, nil, nil)

	err := s.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNoAirPlayClient)
}

func TestAirPlaySender_SetVolumeClampsAndForwards(t *testing.T) {
	client := &fakeAirPlayClient{}
	s := NewAirPlaySender(AirPlaySenderConfig{DeviceID: "dev-1"}, client, nil, nil)

	require.NoError(t, s.SetVolume(150))
	require.NoError(t, s.SetVolume(-5))

	assert.Equal(t, []int{100, 0}, client.volumes)
}

func TestAirPlaySender_MuteDrivesVolumeToZeroAndRestores(t *testing.T) {
	client := &fakeAirPlayClient{}
	s := NewAirPlaySender(AirPlaySenderConfig{DeviceID: "dev-1"}, client, nil, nil)

	require.NoError(t, s.SetVolume(40))
	require.NoError(t, s.SetMute(true))
	require.NoError(t, s.SetMute(false))

	assert.Equal(t, []int{40, 0, 40}, client.volumes)
}

func TestAirPlaySender_PauseIsImplementedAsStop(t *testing.T) {
	client := &fakeAirPlayClient{}
	s := NewAirPlaySender(AirPlaySenderConfig{DeviceID: "dev-1"}, client, nil, nil)
	s.running = true

	require.NoError(t, s.Pause())

	assert.Equal(t, 1, client.stopped)
	assert.False(t, s.IsRunning())
}

func TestNoopVolumeController_AlwaysDegrades(t *testing.T) {
	c := NoopVolumeController()
	assert.False(t, c.Available())

	require.NoError(t, c.SetVolume(50))
	v, err := c.GetVolume()
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}
