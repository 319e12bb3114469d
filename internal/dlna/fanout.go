package dlna

import (
	"log/slog"

	"airbridge/internal/device"
	"airbridge/internal/eventbus"
)

// subscribeEventFanOut wires the GENA NOTIFY fan-out to the state, volume
// and DSP change events. Only a state change sends NOTIFY, to AVTransport
// subscribers; the volume and DSP handlers do nothing, so
// RenderingControl subscribers receive no NOTIFY.
func (s *Service) subscribeEventFanOut() {
	s.stateSub = s.bus.Subscribe(eventbus.TypeStateChanged, "", s.onStateChanged)
	s.volSub = s.bus.Subscribe(eventbus.TypeVolumeChanged, "", s.onVolumeChanged)
	s.dspSub = s.bus.Subscribe(eventbus.TypeDSPChanged, "", s.onDSPChanged)
}

func (s *Service) onStateChanged(e eventbus.Event) error {
	d := s.manager.GetDevice(e.DeviceID)
	if d == nil {
		return nil
	}
	s.notifyAVTransportSubscribers(d)
	return nil
}

func (s *Service) onVolumeChanged(e eventbus.Event) error {
	// RenderingControl eventing mirrors AVTransport's LastChange pattern,
	// but no control point in practice subscribes to it; volume/mute are
	// read via GetVolume/GetMute polling instead.
	return nil
}

func (s *Service) onDSPChanged(eventbus.Event) error {
	return nil
}

// notifyAVTransportSubscribers sends one NOTIFY per live AVTransport
// subscriber on d, each seeing the GENA fan-out policy's per-subscriber
// view of the transport state (true state for the active client;
// everyone else sees PAUSED_PLAYBACK in place of PLAYING).
func (s *Service) notifyAVTransportSubscribers(d *device.VirtualDevice) {
	active := d.GetActiveClient()
	for _, sub := range s.subs.forDevice(d.DeviceID, "AVTransport") {
		isActive := sub.ClientIP == active.ClientIP && active.ClientIP != ""
		body, err := s.buildAVTransportNotify(d, isActive)
		if err != nil {
			s.logger.Warn("build NOTIFY body failed", slog.Any("error", err), slog.String("device_id", d.DeviceID))
			continue
		}
		s.subs.notify(sub, body)
	}
}

func (s *Service) buildAVTransportNotify(d *device.VirtualDevice, isActiveClient bool) ([]byte, error) {
	pb := d.PlaybackSnapshot()
	wire := transportStateWire(pb.State, isActiveClient)
	actions := currentTransportActions(pb.State)
	lc := lastChangeBody(wire, actions, pb.URL, pb.URL)
	return notifyPropertySet(lc)
}
