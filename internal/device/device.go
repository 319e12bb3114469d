// Package device implements the per-device executor (VirtualDevice), the
// AirPlay discovery loop (Scanner), and the registry that owns them all
// (Manager).
package device

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"airbridge/internal/dsp"
	"airbridge/internal/eventbus"
	"airbridge/internal/observability"
	"airbridge/internal/output"
)

// Type distinguishes the two device kinds a VirtualDevice can be.
type Type string

const (
	TypeAirPlay       Type = "airplay"
	TypeServerSpeaker Type = "server_speaker"
)

// ServerSpeakerName is this bridge's fixed device-id for the optional
// host-speaker device.
const ServerSpeakerName = "server_speaker"

// GenerateDeviceID derives a stable device-id from an AirPlay scan
// identifier, or returns the server-speaker literal, matching
// original_source/device/virtual_device.py::generate_device_id.
func GenerateDeviceID(airplayID string, deviceType Type) string {
	if deviceType == TypeServerSpeaker {
		return ServerSpeakerName
	}
	sum := md5.Sum([]byte(airplayID))
	return hex.EncodeToString(sum[:])[:16]
}

// PlaybackState groups a device's current transport/track state.
type PlaybackState struct {
	State            eventbus.PlayState
	URL              string
	Title            string
	Artist           string
	Album            string
	CoverURL         string
	Duration         float64
	Position         float64
	PositionAnchorAt time.Time
}

// AudioInfo groups the resolved codec/bitrate/channel facts for the
// currently playing stream.
type AudioInfo struct {
	Format       string
	Bitrate      int64
	SampleRate   int
	Channels     int
	IsStreaming  bool
}

// ActiveClient records the DLNA control point currently permitted to
// issue authoritative transport/volume commands.
type ActiveClient struct {
	ClientIP string
	SID      string
}

// VirtualDevice is the per-device executor: it holds
// state, subscribes to command events filtered to its device-id, drives
// its Output, and emits state events. All mutation happens on whichever
// goroutine dispatches bus events for this device — the bus does not
// itself serialize across devices, so callers must not mutate a
// VirtualDevice's exported state directly.
type VirtualDevice struct {
	mu sync.Mutex

	DeviceID   string
	Name       string
	Type       Type
	DLNAUUID   string

	// Attached info (AirPlay variant only).
	ScanIdentifier string
	Address        string
	Model          string

	Playback PlaybackState
	Audio    AudioInfo

	DSPEnabled bool
	DSPConfig  dsp.Config

	Volume int
	Muted  bool

	Connected bool
	LastSeen  time.Time

	active ActiveClient

	bus    *eventbus.Bus
	out    output.Output
	graph  *dsp.Graph
	logger *slog.Logger

	subs []eventbus.Subscription
}

// NewAirPlayDevice builds a VirtualDevice for a discovered AirPlay
// speaker, matching VirtualDevice.create_airplay_device.
func NewAirPlayDevice(bus *eventbus.Bus, logger *slog.Logger, scanIdentifier, name, address, model string) *VirtualDevice {
	id := GenerateDeviceID(scanIdentifier, TypeAirPlay)
	return newDevice(bus, logger, id, name, TypeAirPlay, scanIdentifier, address, model)
}

// NewServerSpeakerDevice builds the singleton host-speaker device,
// matching VirtualDevice.create_server_speaker.
func NewServerSpeakerDevice(bus *eventbus.Bus, logger *slog.Logger, name string) *VirtualDevice {
	return newDevice(bus, logger, ServerSpeakerName, name, TypeServerSpeaker, "", "", "")
}

func newDevice(bus *eventbus.Bus, logger *slog.Logger, id, name string, t Type, scanID, address, model string) *VirtualDevice {
	if logger == nil {
		logger = slog.Default()
	}
	dlnaUUID := "uuid:dlna-bridge-" + shortUUID()
	return &VirtualDevice{
		DeviceID:       id,
		Name:           name,
		Type:           t,
		DLNAUUID:       dlnaUUID,
		ScanIdentifier: scanID,
		Address:        address,
		Model:          model,
		Playback:       PlaybackState{State: eventbus.StateStopped},
		DSPConfig:      dsp.DefaultConfig(),
		Volume:         100,
		bus:            bus,
		logger:         logger.With(slog.String("component", "virtual_device"), slog.String("device_id", id)),
	}
}

func shortUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "00000000"
	}
	return hex.EncodeToString(id.Bytes())[:8]
}

// SetOutput attaches the Output variant this device drives. Must be
// called before Start.
func (d *VirtualDevice) SetOutput(out output.Output) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out = out
}

// SetDSPGraph attaches the DSP graph instance backing this device's DSP
// config; the graph is kept in sync whenever DSPConfig changes via a
// SET_DSP/RESET_DSP command.
func (d *VirtualDevice) SetDSPGraph(g *dsp.Graph) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.graph = g
}

// Start subscribes device-filtered handlers for every command event type:
// play, stop, pause, seek, volume, mute, and DSP set/reset.
func (d *VirtualDevice) Start() {
	d.subs = append(d.subs,
		d.bus.Subscribe(eventbus.TypePlay, d.DeviceID, d.onPlay),
		d.bus.Subscribe(eventbus.TypeStop, d.DeviceID, d.onStop),
		d.bus.Subscribe(eventbus.TypePause, d.DeviceID, d.onPause),
		d.bus.Subscribe(eventbus.TypeSeek, d.DeviceID, d.onSeek),
		d.bus.Subscribe(eventbus.TypeSetVolume, d.DeviceID, d.onSetVolume),
		d.bus.Subscribe(eventbus.TypeSetMute, d.DeviceID, d.onSetMute),
		d.bus.Subscribe(eventbus.TypeSetDSP, d.DeviceID, d.onSetDSP),
		d.bus.Subscribe(eventbus.TypeResetDSP, d.DeviceID, d.onResetDSP),
	)
}

// Shutdown unsubscribes every handler and closes the Output.
func (d *VirtualDevice) Shutdown() {
	for _, sub := range d.subs {
		d.bus.Unsubscribe(sub)
	}
	d.subs = nil
	d.mu.Lock()
	out := d.out
	d.mu.Unlock()
	if out != nil {
		_ = out.Stop()
	}
}

func floatFromData(data map[string]any, key string) (float64, bool) {
	v, ok := data[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// SetTransitioning marks the device TRANSITIONING ahead of an upcoming
// Play — called by SetAVTransportURI, which stages a new track but does
// not itself start playback — and publishes the state change so GENA
// subscribers see the transport leave its prior state immediately.
func (d *VirtualDevice) SetTransitioning() {
	d.mu.Lock()
	d.Playback.State = eventbus.StateTransitioning
	d.mu.Unlock()
	d.bus.Publish(eventbus.StateChanged(d.DeviceID, eventbus.StateTransitioning))
}

func (d *VirtualDevice) onPlay(e eventbus.Event) error {
	d.mu.Lock()
	url, _ := e.Data["url"].(string)
	position, _ := floatFromData(e.Data, "position")
	if title, ok := e.Data["title"].(string); ok {
		d.Playback.Title = title
	}
	if artist, ok := e.Data["artist"].(string); ok {
		d.Playback.Artist = artist
	}
	if album, ok := e.Data["album"].(string); ok {
		d.Playback.Album = album
	}
	if cover, ok := e.Data["cover_url"].(string); ok {
		d.Playback.CoverURL = cover
	}
	if url != "" {
		d.Playback.URL = url
	}
	d.Playback.State = eventbus.StatePlaying
	d.Playback.Position = position
	d.Playback.PositionAnchorAt = time.Now()
	d.LastSeen = time.Now()
	out := d.out
	d.mu.Unlock()

	if out != nil {
		_ = out.Play(context.TODO(), url, position)
	}
	observability.ActivePlaybackSessions.WithLabelValues(d.DeviceID).Set(1)
	d.bus.Publish(eventbus.StateChanged(d.DeviceID, eventbus.StatePlaying))
	return nil
}

func (d *VirtualDevice) onStop(eventbus.Event) error {
	d.mu.Lock()
	d.Playback.State = eventbus.StateStopped
	d.Playback.Position = 0
	d.Playback.PositionAnchorAt = time.Time{}
	out := d.out
	d.mu.Unlock()

	if out != nil {
		_ = out.Stop()
	}
	observability.ActivePlaybackSessions.WithLabelValues(d.DeviceID).Set(0)
	d.bus.Publish(eventbus.StateChanged(d.DeviceID, eventbus.StateStopped))
	return nil
}

func (d *VirtualDevice) onPause(eventbus.Event) error {
	d.mu.Lock()
	if d.Playback.State == eventbus.StatePlaying && !d.Playback.PositionAnchorAt.IsZero() {
		elapsed := time.Since(d.Playback.PositionAnchorAt).Seconds()
		d.Playback.Position += elapsed
	}
	d.Playback.State = eventbus.StatePaused
	out := d.out
	d.mu.Unlock()

	if out != nil {
		_ = out.Pause()
	}
	observability.ActivePlaybackSessions.WithLabelValues(d.DeviceID).Set(0)
	d.bus.Publish(eventbus.StateChanged(d.DeviceID, eventbus.StatePaused))
	return nil
}

func (d *VirtualDevice) onSeek(e eventbus.Event) error {
	position, _ := floatFromData(e.Data, "position")

	d.mu.Lock()
	d.Playback.Position = position
	playing := d.Playback.State == eventbus.StatePlaying
	if playing {
		d.Playback.PositionAnchorAt = time.Now()
	}
	url := d.Playback.URL
	out := d.out
	d.mu.Unlock()

	if out != nil {
		_ = out.Seek(context.TODO(), position)
		if playing && url != "" {
			_ = out.Play(context.TODO(), url, position)
		}
	}
	return nil
}

func (d *VirtualDevice) onSetVolume(e eventbus.Event) error {
	volume, _ := e.Data["volume"].(int)
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}

	d.mu.Lock()
	d.Volume = volume
	out := d.out
	muted := d.Muted
	d.mu.Unlock()

	if out != nil {
		_ = out.SetVolume(volume)
	}
	d.bus.Publish(eventbus.VolumeChanged(d.DeviceID, volume, muted))
	return nil
}

func (d *VirtualDevice) onSetMute(e eventbus.Event) error {
	muted, _ := e.Data["muted"].(bool)

	d.mu.Lock()
	d.Muted = muted
	out := d.out
	volume := d.Volume
	d.mu.Unlock()

	if out != nil {
		_ = out.SetMute(muted)
	}
	d.bus.Publish(eventbus.VolumeChanged(d.DeviceID, volume, muted))
	return nil
}

func (d *VirtualDevice) onSetDSP(e eventbus.Event) error {
	enabled, _ := e.Data["enabled"].(bool)
	patch, _ := e.Data["config"].(map[string]any)

	d.mu.Lock()
	d.DSPEnabled = enabled
	d.DSPConfig = d.DSPConfig.Merge(patch)
	if d.graph != nil {
		d.graph.SetConfig(d.DSPConfig)
	}
	cfg := d.DSPConfig
	d.mu.Unlock()

	d.bus.Publish(eventbus.DSPChanged(d.DeviceID, enabled, cfg.ToMap()))
	return nil
}

func (d *VirtualDevice) onResetDSP(eventbus.Event) error {
	d.mu.Lock()
	d.DSPConfig = dsp.DefaultConfig()
	d.DSPEnabled = false
	if d.graph != nil {
		d.graph.Reset()
		d.graph.SetConfig(d.DSPConfig)
	}
	cfg := d.DSPConfig
	d.mu.Unlock()

	d.bus.Publish(eventbus.DSPChanged(d.DeviceID, false, cfg.ToMap()))
	return nil
}

// CurrentPosition delegates to the Output when it can report true
// playback position, else computes position + elapsed-time when
// PLAYING, else returns the stored position.
func (d *VirtualDevice) CurrentPosition() float64 {
	d.mu.Lock()
	out := d.out
	state := d.Playback.State
	position := d.Playback.Position
	anchor := d.Playback.PositionAnchorAt
	d.mu.Unlock()

	if out != nil {
		if pos, ok := out.CurrentPosition(); ok {
			return pos
		}
	}
	if state == eventbus.StatePlaying && !anchor.IsZero() {
		return position + time.Since(anchor).Seconds()
	}
	return position
}

// SetActiveClient records the (client-ip, sid) pair last granted control,
// per the active-client authorization model.
func (d *VirtualDevice) SetActiveClient(clientIP, sid string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = ActiveClient{ClientIP: clientIP, SID: sid}
}

// GetActiveClient returns the current active-client binding.
func (d *VirtualDevice) GetActiveClient() ActiveClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// PlaybackSnapshot returns a copy of the current playback state, safe to
// read from outside the device package without racing the command
// handlers above.
func (d *VirtualDevice) PlaybackSnapshot() PlaybackState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Playback
}

// VolumeSnapshot returns the current volume and mute flag under lock.
func (d *VirtualDevice) VolumeSnapshot() (volume int, muted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Volume, d.Muted
}

// UpdateAudioInfo is the externally-driven setter used by the probe
// pipeline once codec/bitrate/sample-rate/channels become known.
func (d *VirtualDevice) UpdateAudioInfo(info AudioInfo) {
	d.mu.Lock()
	info.IsStreaming = info.IsStreaming || isStreaming(d.Playback.Duration)
	d.Audio = info
	d.mu.Unlock()
	d.bus.Publish(eventbus.MetadataUpdated(d.DeviceID))
}

func isStreaming(duration float64) bool {
	return duration == 0 || duration > 86400
}

// SetPlaybackDuration is called once the probe resolves track duration.
func (d *VirtualDevice) SetPlaybackDuration(duration float64) {
	d.mu.Lock()
	d.Playback.Duration = duration
	d.mu.Unlock()
}

// ToMap serializes the device the way the web-panel/REST seam (out of
// scope) would consume it.
func (d *VirtualDevice) ToMap() map[string]any {
	// CurrentPosition takes its own lock, so it must be computed before
	// acquiring d.mu below (sync.Mutex is not re-entrant).
	position := d.CurrentPosition()

	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]any{
		"device_id":   d.DeviceID,
		"name":        d.Name,
		"type":        string(d.Type),
		"dlna_uuid":   d.DLNAUUID,
		"state":       string(d.Playback.State),
		"url":         d.Playback.URL,
		"title":       d.Playback.Title,
		"artist":      d.Playback.Artist,
		"album":       d.Playback.Album,
		"duration":    d.Playback.Duration,
		"position":    position,
		"volume":      d.Volume,
		"muted":       d.Muted,
		"connected":   d.Connected,
		"dsp_enabled": d.DSPEnabled,
	}
}

// FormatTime renders seconds as HH:MM:SS, matching
// original_source/device/virtual_device.py::_format_time. Zero/negative
// durations render as "00:00:00".
func FormatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ParseTime parses "H:M:S", "M:S", or a bare seconds value, matching
// original_source/device/virtual_device.py::parse_time. Any malformed
// input returns 0, never an error — callers that need to distinguish
// "zero" from "unparseable" should validate the string themselves before
// calling ParseTime (the DLNA Seek handler does this, to turn garbage
// input into an invalid-argument SOAP fault instead of silently seeking
// to zero).
func ParseTime(s string) float64 {
	var h, m, sec float64
	n, err := fmt.Sscanf(s, "%f:%f:%f", &h, &m, &sec)
	if err == nil && n == 3 {
		return h*3600 + m*60 + sec
	}

	n, err = fmt.Sscanf(s, "%f:%f", &m, &sec)
	if err == nil && n == 2 {
		return m*60 + sec
	}

	var bare float64
	n, err = fmt.Sscanf(s, "%f", &bare)
	if err == nil && n == 1 {
		return bare
	}
	return 0
}
