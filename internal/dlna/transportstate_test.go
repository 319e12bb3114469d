package dlna

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"airbridge/internal/eventbus"
)

func TestTransportStateWire_ActiveClientSeesTruth(t *testing.T) {
	assert.Equal(t, "PLAYING", transportStateWire(eventbus.StatePlaying, true))
	assert.Equal(t, "PAUSED_PLAYBACK", transportStateWire(eventbus.StatePaused, true))
	assert.Equal(t, "STOPPED", transportStateWire(eventbus.StateStopped, true))
}

func TestTransportStateWire_NonActiveClientNeverSeesPlaying(t *testing.T) {
	assert.Equal(t, "PAUSED_PLAYBACK", transportStateWire(eventbus.StatePlaying, false))
	assert.Equal(t, "PAUSED_PLAYBACK", transportStateWire(eventbus.StatePaused, false))
	assert.Equal(t, "STOPPED", transportStateWire(eventbus.StateStopped, false))
}

func TestCurrentTransportActions(t *testing.T) {
	assert.Equal(t, "Pause,Stop,Seek", currentTransportActions(eventbus.StatePlaying))
	assert.Equal(t, "Play,Stop", currentTransportActions(eventbus.StatePaused))
	assert.Equal(t, "Play", currentTransportActions(eventbus.StateStopped))
}
