// Package eventbus implements the in-process publish/subscribe bus that
// every other component uses to communicate: virtual devices receive
// commands and emit state changes through it, the DLNA service turns SOAP
// actions into commands and state changes into NOTIFY bodies, and the
// config store reacts to DSP changes.
package eventbus

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Type is the closed set of event kinds that can flow through the bus.
type Type string

const (
	// Command events, published by the DLNA service and consumed by a VirtualDevice.
	TypePlay      Type = "cmd.play"
	TypeStop      Type = "cmd.stop"
	TypePause     Type = "cmd.pause"
	TypeSeek      Type = "cmd.seek"
	TypeSetVolume Type = "cmd.set_volume"
	TypeSetMute   Type = "cmd.set_mute"
	TypeSetDSP    Type = "cmd.set_dsp"
	TypeResetDSP  Type = "cmd.reset_dsp"

	// Device-lifecycle events, published by the Device Manager.
	TypeDeviceAdded                   Type = "device.added"
	TypeDeviceRemoved                 Type = "device.removed"
	TypeDeviceConnected               Type = "device.connected"
	TypeDeviceDisconnected            Type = "device.disconnected"
	TypeDeviceOfflineThresholdReached Type = "device.offline_threshold_reached"

	// State events, published by a VirtualDevice.
	TypeStateChanged    Type = "state.changed"
	TypePositionUpdated Type = "state.position_updated"
	TypeMetadataUpdated Type = "state.metadata_updated"
	TypeDSPChanged      Type = "state.dsp_changed"
	TypeVolumeChanged   Type = "state.volume_changed"

	// System events.
	TypeStartup  Type = "system.startup"
	TypeShutdown Type = "system.shutdown"

	// Wildcard subscribes to every type.
	Wildcard Type = "*"
)

// PlayState is the closed set of transport states a device can be in.
// The DLNA wire layer maps this onto UPnP's AVTransport enumeration
// (PAUSED becomes the wire value "PAUSED_PLAYBACK") at serialization time
// only — see internal/dlna.transportStateWire.
type PlayState string

const (
	StateStopped      PlayState = "STOPPED"
	StatePlaying      PlayState = "PLAYING"
	StatePaused       PlayState = "PAUSED"
	StateTransitioning PlayState = "TRANSITIONING"
)

// Event is the single record type that moves through the bus. Data is a
// map whose keys depend on Type; the helper constructors below fix the
// keys each Type carries, and handlers index Data and type-assert the
// values they expect.
type Event struct {
	Type      Type
	DeviceID  string // optional; empty for device-less events (STARTUP/SHUTDOWN)
	Data      map[string]any
	Timestamp time.Time
	TraceID   string
}

func newEvent(t Type, deviceID string, data map[string]any) Event {
	id, err := uuid.NewV7()
	trace := ""
	if err == nil {
		trace = id.String()
	}
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		Type:      t,
		DeviceID:  deviceID,
		Data:      data,
		Timestamp: time.Now(),
		TraceID:   trace,
	}
}

func (e Event) String() string {
	return fmt.Sprintf("Event(type=%s device=%s trace=%s)", e.Type, e.DeviceID, e.TraceID)
}

// Command constructors. Each mirrors a SOAP/control-plane action reduced
// to an event.

func CmdPlay(deviceID, url string, position float64, metadata map[string]any) Event {
	data := map[string]any{"url": url, "position": position}
	for k, v := range metadata {
		data[k] = v
	}
	return newEvent(TypePlay, deviceID, data)
}

func CmdStop(deviceID string) Event {
	return newEvent(TypeStop, deviceID, nil)
}

func CmdPause(deviceID string) Event {
	return newEvent(TypePause, deviceID, nil)
}

func CmdSeek(deviceID string, position float64) Event {
	return newEvent(TypeSeek, deviceID, map[string]any{"position": position})
}

func CmdSetVolume(deviceID string, volume int) Event {
	return newEvent(TypeSetVolume, deviceID, map[string]any{"volume": volume})
}

func CmdSetMute(deviceID string, muted bool) Event {
	return newEvent(TypeSetMute, deviceID, map[string]any{"muted": muted})
}

func CmdSetDSP(deviceID string, enabled bool, config map[string]any) Event {
	return newEvent(TypeSetDSP, deviceID, map[string]any{"enabled": enabled, "config": config})
}

func CmdResetDSP(deviceID string) Event {
	return newEvent(TypeResetDSP, deviceID, nil)
}

// Device-lifecycle constructors.

func DeviceAdded(deviceID string, info map[string]any) Event {
	return newEvent(TypeDeviceAdded, deviceID, info)
}

func DeviceRemoved(deviceID string) Event {
	return newEvent(TypeDeviceRemoved, deviceID, nil)
}

func DeviceConnected(deviceID string) Event {
	return newEvent(TypeDeviceConnected, deviceID, nil)
}

func DeviceDisconnected(deviceID string) Event {
	return newEvent(TypeDeviceDisconnected, deviceID, nil)
}

func DeviceOfflineThresholdReached(scanID string) Event {
	return newEvent(TypeDeviceOfflineThresholdReached, "", map[string]any{"scan_id": scanID})
}

// State constructors.

func StateChanged(deviceID string, state PlayState) Event {
	return newEvent(TypeStateChanged, deviceID, map[string]any{"state": string(state)})
}

func PositionUpdated(deviceID string, position float64) Event {
	return newEvent(TypePositionUpdated, deviceID, map[string]any{"position": position})
}

func MetadataUpdated(deviceID string) Event {
	return newEvent(TypeMetadataUpdated, deviceID, nil)
}

func DSPChanged(deviceID string, enabled bool, config map[string]any) Event {
	return newEvent(TypeDSPChanged, deviceID, map[string]any{"enabled": enabled, "config": config})
}

func VolumeChanged(deviceID string, volume int, muted bool) Event {
	return newEvent(TypeVolumeChanged, deviceID, map[string]any{"volume": volume, "muted": muted})
}

func Startup() Event  { return newEvent(TypeStartup, "", nil) }
func Shutdown() Event { return newEvent(TypeShutdown, "", nil) }
