package dlna

import (
	"strconv"

	"airbridge/internal/device"
	"airbridge/internal/eventbus"
)

// requireActiveClientRC is requireActiveClient's RenderingControl variant:
// same active-client-and-subscription precondition, but an unauthorized
// caller faults 402 (invalid args) rather than AVTransport's 701, per
// RenderingControl's own error code for SetVolume/SetMute.
func (s *Service) requireActiveClientRC(d *device.VirtualDevice, clientIP string) error {
	if err := s.requireActiveClient(d, clientIP); err != nil {
		return errNotAuthorizedRC
	}
	return nil
}

func (s *Service) actionGetVolume(d *device.VirtualDevice, _ string, _ map[string]string) (map[string]string, error) {
	volume, _ := d.VolumeSnapshot()
	return map[string]string{"CurrentVolume": strconv.Itoa(volume)}, nil
}

func (s *Service) actionSetVolume(d *device.VirtualDevice, clientIP string, args map[string]string) (map[string]string, error) {
	if err := s.requireActiveClientRC(d, clientIP); err != nil {
		return nil, err
	}
	volume, err := strconv.Atoi(args["DesiredVolume"])
	if err != nil || volume < 0 || volume > 100 {
		return nil, errInvalidArgs
	}
	s.bus.Publish(eventbus.CmdSetVolume(d.DeviceID, volume))
	return map[string]string{}, nil
}

func (s *Service) actionGetMute(d *device.VirtualDevice, _ string, _ map[string]string) (map[string]string, error) {
	_, muted := d.VolumeSnapshot()
	val := "0"
	if muted {
		val = "1"
	}
	return map[string]string{"CurrentMute": val}, nil
}

func (s *Service) actionSetMute(d *device.VirtualDevice, clientIP string, args map[string]string) (map[string]string, error) {
	if err := s.requireActiveClientRC(d, clientIP); err != nil {
		return nil, err
	}
	switch args["DesiredMute"] {
	case "1", "true":
		s.bus.Publish(eventbus.CmdSetMute(d.DeviceID, true))
	case "0", "false":
		s.bus.Publish(eventbus.CmdSetMute(d.DeviceID, false))
	default:
		return nil, errInvalidArgs
	}
	return map[string]string{}, nil
}
