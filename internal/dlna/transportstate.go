// Package dlna implements the DLNA MediaRenderer surface: SSDP discovery,
// the device/SCPD description documents, the AVTransport/RenderingControl/
// ConnectionManager SOAP services, and GENA event subscriptions. Every
// VirtualDevice the device.Manager owns is exposed as one independent UPnP
// root device on a single shared HTTP port.
package dlna

import "airbridge/internal/eventbus"

// transportStateWire maps the internal PlayState enum onto the wire value
// AVTransport:1 expects. PAUSED becomes "PAUSED_PLAYBACK" only here;
// internal code never spells that string. isActiveClient selects the
// "every other subscriber sees PAUSED_PLAYBACK" GENA fan-out policy from
// the Open Question resolution: non-active subscribers never see PLAYING.
func transportStateWire(state eventbus.PlayState, isActiveClient bool) string {
	if !isActiveClient && state == eventbus.StatePlaying {
		return "PAUSED_PLAYBACK"
	}
	switch state {
	case eventbus.StatePlaying:
		return "PLAYING"
	case eventbus.StatePaused:
		return "PAUSED_PLAYBACK"
	case eventbus.StateTransitioning:
		return "TRANSITIONING"
	default:
		return "STOPPED"
	}
}

// currentTransportActions returns the state-dependent action set
// GetCurrentTransportActions advertises.
func currentTransportActions(state eventbus.PlayState) string {
	switch state {
	case eventbus.StatePlaying:
		return "Pause,Stop,Seek"
	case eventbus.StatePaused:
		return "Play,Stop"
	case eventbus.StateTransitioning:
		return "Stop"
	default:
		return "Play"
	}
}
