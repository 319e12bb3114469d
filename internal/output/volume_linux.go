//go:build linux

package output

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// dbusVolumeController implements SystemVolumeController against a
// PulseAudio/PipeWire-compatible D-Bus session interface, grounded on
// brianhealey-ampli-pi4's use of godbus/dbus/v5 for device control.
type dbusVolumeController struct {
	conn   *dbus.Conn
	object dbus.BusObject
}

const (
	pulseAudioDBusDest = "org.PulseAudio1"
	pulseAudioDBusPath = "/org/pulseaudio/server_lookup1"
	sinkVolumeProperty = "org.PulseAudio.Core1.Device.Volume"
)

// NewDBusVolumeController connects to the session bus. If the bus or the
// PulseAudio/PipeWire object is unavailable, Available() reports false
// and every call degrades silently.
func NewDBusVolumeController() SystemVolumeController {
	conn, err := dbus.SessionBus()
	if err != nil {
		return NoopVolumeController()
	}
	obj := conn.Object(pulseAudioDBusDest, dbus.ObjectPath(pulseAudioDBusPath))
	return &dbusVolumeController{conn: conn, object: obj}
}

func (c *dbusVolumeController) Available() bool {
	return c.conn != nil && c.object != nil
}

func (c *dbusVolumeController) GetVolume() (int, error) {
	variant, err := c.object.GetProperty(sinkVolumeProperty)
	if err != nil {
		return 0, fmt.Errorf("dbus get volume: %w", err)
	}
	levels, ok := variant.Value().([]uint32)
	if !ok || len(levels) == 0 {
		return 0, fmt.Errorf("dbus volume property had unexpected shape")
	}
	// PulseAudio's native volume scale is 0..65536; map onto 0..100.
	return int(levels[0] * 100 / 65536), nil
}

func (c *dbusVolumeController) SetVolume(volume int) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	native := uint32(volume) * 65536 / 100
	levels := []uint32{native, native}
	return c.object.SetProperty(sinkVolumeProperty, levels)
}

func (c *dbusVolumeController) GetMute() (bool, error) {
	variant, err := c.object.GetProperty("org.PulseAudio.Core1.Device.Mute")
	if err != nil {
		return false, fmt.Errorf("dbus get mute: %w", err)
	}
	muted, _ := variant.Value().(bool)
	return muted, nil
}

func (c *dbusVolumeController) SetMute(muted bool) error {
	return c.object.SetProperty("org.PulseAudio.Core1.Device.Mute", muted)
}
