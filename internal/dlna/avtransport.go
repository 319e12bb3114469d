package dlna

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"airbridge/internal/audio"
	"airbridge/internal/device"
	"airbridge/internal/eventbus"
)

// probeTimeout bounds the async ffprobe/cover-art fetch SetAVTransportURI
// kicks off; it never blocks the SOAP response on this.
const probeTimeout = 5 * time.Second

// stagedTrack holds the URI+metadata a control point announced via
// SetAVTransportURI, staged until the matching Play action actually
// starts the transport. DLNA's AVTransport splits "what to play" from
// "start playing" across these two actions; Play itself carries no URI.
type stagedTrack struct {
	URL      string
	Title    string
	Artist   string
	Album    string
	CoverURL string
	Duration float64
}

// stagingTable holds one staged track per device, guarded independently
// of subscriptionTable since staging has nothing to do with GENA.
type stagingTable struct {
	mu       sync.Mutex
	byDevice map[string]stagedTrack
}

func newStagingTable() *stagingTable {
	return &stagingTable{byDevice: make(map[string]stagedTrack)}
}

func (t *stagingTable) set(deviceID string, track stagedTrack) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byDevice[deviceID] = track
}

func (t *stagingTable) get(deviceID string) (stagedTrack, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	track, ok := t.byDevice[deviceID]
	return track, ok
}

// requireActiveClient enforces the authorization precondition for
// Play/Stop/Pause/Seek: the caller must both be the device's current
// active client and hold a live AVTransport subscription. RenderingControl
// actions use requireActiveClientRC, which maps the same check onto fault
// 402 instead of 701 (see internal/dlna/renderingcontrol.go).
func (s *Service) requireActiveClient(d *device.VirtualDevice, clientIP string) error {
	active := d.GetActiveClient()
	if active.ClientIP == "" || active.ClientIP != clientIP {
		return errNotAuthorized
	}
	if !s.subs.hasActiveSubscription(d.DeviceID, "AVTransport", clientIP) {
		return errNotAuthorized
	}
	return nil
}

func (s *Service) actionSetAVTransportURI(d *device.VirtualDevice, clientIP string, args map[string]string) (map[string]string, error) {
	uri := args["CurrentURI"]
	if uri == "" {
		return nil, errInvalidArgs
	}
	title, artist, album, cover, duration := parseDIDLMetadata(args["CurrentURIMetaData"])
	s.staging.set(d.DeviceID, stagedTrack{URL: uri, Title: title, Artist: artist, Album: album, CoverURL: cover, Duration: duration})

	if active := d.GetActiveClient(); active.ClientIP == "" {
		d.SetActiveClient(clientIP, "")
	}

	if !s.subs.hasActiveSubscription(d.DeviceID, "AVTransport", clientIP) {
		s.subs.subscribeTemporary(d.DeviceID, "AVTransport", clientIP, uri)
	}

	d.SetTransitioning()
	if duration > 0 {
		d.SetPlaybackDuration(duration)
	}
	s.probeTrackAsync(d, uri, cover)

	return map[string]string{}, nil
}

// probeTrackAsync runs ffprobe (and, if a cover-url was supplied, a
// best-effort cover-art validate/sniff) in the background once
// SetAVTransportURI stages a new track. Neither probe ever blocks the SOAP
// response; failures are logged and otherwise swallowed.
func (s *Service) probeTrackAsync(d *device.VirtualDevice, uri, coverURL string) {
	go func() {
		meta, err := audio.ProbeMedia(context.Background(), uri, probeTimeout, s.logger)
		if err != nil {
			return
		}
		if meta.Duration > 0 {
			d.SetPlaybackDuration(meta.Duration)
		}
		d.UpdateAudioInfo(device.AudioInfo{
			Format:     meta.CodecName,
			Bitrate:    meta.BitRate,
			SampleRate: meta.SampleRate,
			Channels:   meta.Channels,
		})

		if coverURL == "" {
			return
		}
		if _, err := audio.ProbeCoverArt(context.Background(), coverURL, s.logger); err != nil {
			s.logger.Debug("cover-art probe failed", slog.Any("error", err), slog.String("device_id", d.DeviceID))
		}
	}()
}

func (s *Service) actionPlay(d *device.VirtualDevice, clientIP string, _ map[string]string) (map[string]string, error) {
	if err := s.requireActiveClient(d, clientIP); err != nil {
		return nil, err
	}

	pb := d.PlaybackSnapshot()
	track, staged := s.staging.get(d.DeviceID)
	url := pb.URL
	metadata := map[string]any{}
	if staged {
		url = track.URL
		metadata["title"] = track.Title
		metadata["artist"] = track.Artist
		metadata["album"] = track.Album
		metadata["cover_url"] = track.CoverURL
	}
	if url == "" {
		return nil, errNoContents
	}

	s.bus.Publish(eventbus.CmdPlay(d.DeviceID, url, pb.Position, metadata))
	return map[string]string{}, nil
}

func (s *Service) actionStop(d *device.VirtualDevice, clientIP string, _ map[string]string) (map[string]string, error) {
	if err := s.requireActiveClient(d, clientIP); err != nil {
		return nil, err
	}
	s.bus.Publish(eventbus.CmdStop(d.DeviceID))
	return map[string]string{}, nil
}

func (s *Service) actionPause(d *device.VirtualDevice, clientIP string, _ map[string]string) (map[string]string, error) {
	if err := s.requireActiveClient(d, clientIP); err != nil {
		return nil, err
	}
	s.bus.Publish(eventbus.CmdPause(d.DeviceID))
	return map[string]string{}, nil
}

// seekTargetPattern accepts the "H:M:S", "M:S" and bare-seconds forms
// device.ParseTime understands, each with an optional fraction.
var seekTargetPattern = regexp.MustCompile(`^\d+(:\d{1,2}){0,2}(\.\d+)?$`)

func (s *Service) actionSeek(d *device.VirtualDevice, clientIP string, args map[string]string) (map[string]string, error) {
	if err := s.requireActiveClient(d, clientIP); err != nil {
		return nil, err
	}
	if args["Unit"] != "" && args["Unit"] != "REL_TIME" {
		return nil, errInvalidArgs
	}
	target := args["Target"]
	if !seekTargetPattern.MatchString(target) {
		return nil, errInvalidArgs
	}
	position := device.ParseTime(target)

	pb := d.PlaybackSnapshot()
	if pb.Duration > 0 && (position < 0 || position > pb.Duration) {
		return nil, errSeekOutOfRange
	}

	s.bus.Publish(eventbus.CmdSeek(d.DeviceID, position))
	return map[string]string{}, nil
}

func (s *Service) actionGetPositionInfo(d *device.VirtualDevice, _ string, _ map[string]string) (map[string]string, error) {
	pb := d.PlaybackSnapshot()
	position := d.CurrentPosition()
	return map[string]string{
		"Track":         "1",
		"TrackDuration": device.FormatTime(pb.Duration),
		"TrackMetaData": "",
		"TrackURI":      pb.URL,
		"RelTime":       device.FormatTime(position),
		"AbsTime":       device.FormatTime(position),
		"RelCount":      "0",
		"AbsCount":      "0",
	}, nil
}

func (s *Service) actionGetTransportInfo(d *device.VirtualDevice, clientIP string, _ map[string]string) (map[string]string, error) {
	pb := d.PlaybackSnapshot()
	active := d.GetActiveClient()
	isActiveClient := active.ClientIP != "" && active.ClientIP == clientIP
	return map[string]string{
		"CurrentTransportState":  transportStateWire(pb.State, isActiveClient),
		"CurrentTransportStatus": "OK",
		"CurrentSpeed":           "1",
	}, nil
}

func (s *Service) actionGetMediaInfo(d *device.VirtualDevice, _ string, _ map[string]string) (map[string]string, error) {
	pb := d.PlaybackSnapshot()
	return map[string]string{
		"NrTracks":           "1",
		"MediaDuration":      device.FormatTime(pb.Duration),
		"CurrentURI":         pb.URL,
		"CurrentURIMetaData": "",
		"NextURI":            "",
		"NextURIMetaData":    "",
		"PlayMedium":         "NETWORK",
		"RecordMedium":       "NOT_IMPLEMENTED",
		"WriteStatus":        "NOT_IMPLEMENTED",
	}, nil
}

func (s *Service) actionGetCurrentTransportActions(d *device.VirtualDevice, _ string, _ map[string]string) (map[string]string, error) {
	pb := d.PlaybackSnapshot()
	return map[string]string{"Actions": currentTransportActions(pb.State)}, nil
}
