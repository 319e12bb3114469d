package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"airbridge/internal/dsp"
)

// reconnectSettleDelay mirrors original_source/device/device_manager.py's
// asyncio.sleep(0.2) between disconnecting a stale AirPlay session and
// reconnecting.
const reconnectSettleDelay = 200 * time.Millisecond

// ErrNoAirPlayClient is returned when AirPlaySender is used without a
// configured AirPlayClient — there is no AirPlay output without one.
var ErrNoAirPlayClient = errors.New("output: no airplay client library configured")

// AirPlayClient is the seam to the external AirPlay/RAOP client library
// that performs the RTSP handshake and ALAC encoding. Any library
// satisfying this interface can be plugged in at the bootstrap layer;
// tests use an in-memory fake.
type AirPlayClient interface {
	Connect(ctx context.Context, scanIdentifier string) error
	Disconnect() error
	// PlayAudioSource hands the library a pull-model AudioSource; the
	// library owns pulling frames and transporting them as ALAC until
	// Stop is called or the source returns EOF.
	PlayAudioSource(source AudioSource) error
	Stop() error
	SetVolume(volume int) error // 0..100, linearly mapped by the caller onto the library's own scale
	Connected() bool
}

// AirPlaySenderConfig configures the pipeline feeding the AirPlay client.
type AirPlaySenderConfig struct {
	CacheDir       string
	DeviceID       string
	ScanIdentifier string
	SampleRate     int
	Channels       int
}

// AirPlaySender is the AirPlay output variant: it serializes playback
// with an internal lock (only one active stream at a time; a new Play
// aborts the previous one) and maps mute onto a temporary
// volume-to-zero/restore pair, since the AirPlay transport has no
// separate mute primitive.
type AirPlaySender struct {
	cfg    AirPlaySenderConfig
	client AirPlayClient
	graph  *dsp.Graph
	logger *slog.Logger

	mu          sync.Mutex
	source      *pipelineAudioSource
	running     bool
	volume      int
	muted       bool
	preMuteVol  int
}

// NewAirPlaySender builds a sender. client must not be nil; see
// ErrNoAirPlayClient.
func NewAirPlaySender(cfg AirPlaySenderConfig, client AirPlayClient, graph *dsp.Graph, logger *slog.Logger) *AirPlaySender {
	if logger == nil {
		logger = slog.Default()
	}
	return &AirPlaySender{
		cfg:    cfg,
		client: client,
		graph:  graph,
		logger: logger.With(slog.String("component", "airplay_output"), slog.String("device_id", cfg.DeviceID)),
		volume: 100,
	}
}

// Connect (re)establishes the AirPlay session, matching
// original_source/output/airplay_output.py::connect.
func (s *AirPlaySender) Connect(ctx context.Context) error {
	if s.client == nil {
		return ErrNoAirPlayClient
	}
	if err := s.client.Connect(ctx, s.cfg.ScanIdentifier); err != nil {
		s.logger.Warn("airplay connect failed", slog.Any("error", err))
		return fmt.Errorf("connect airplay client: %w", err)
	}
	return nil
}

// Reconnect tears down a stale session and reconnects after a short
// settle delay, per device_manager.py::_reconnect_output.
func (s *AirPlaySender) Reconnect(ctx context.Context) error {
	_ = s.client.Disconnect()
	select {
	case <-time.After(reconnectSettleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Connect(ctx)
}

func (s *AirPlaySender) Play(ctx context.Context, url string, position float64) error {
	if s.client == nil {
		return ErrNoAirPlayClient
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source != nil {
		_ = s.source.Close()
		s.source = nil
	}

	source, err := newPipelineAudioSource(ctx, s.cfg.CacheDir, s.cfg.DeviceID, url, position, s.cfg.SampleRate, s.cfg.Channels, s.graph, true, s.logger)
	if err != nil {
		return fmt.Errorf("build audio source: %w", err)
	}

	if err := s.client.PlayAudioSource(source); err != nil {
		_ = source.Close()
		return fmt.Errorf("airplay play: %w", err)
	}

	s.source = source
	s.running = true
	return nil
}

func (s *AirPlaySender) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *AirPlaySender) stopLocked() error {
	if s.client != nil {
		_ = s.client.Stop()
	}
	if s.source != nil {
		_ = s.source.Close()
		s.source = nil
	}
	s.running = false
	return nil
}

// Pause is implemented as Stop: the AirPlay transport has no pause
// primitive.
func (s *AirPlaySender) Pause() error { return s.Stop() }

// Seek tears down and restarts the stream; the VirtualDevice re-supplies
// the URL via a fresh Play call.
func (s *AirPlaySender) Seek(ctx context.Context, position float64) error {
	return s.Stop()
}

func (s *AirPlaySender) SetVolume(volume int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	s.volume = volume
	if s.muted {
		return nil
	}
	if s.client == nil {
		return ErrNoAirPlayClient
	}
	return s.client.SetVolume(volume)
}

// SetMute drives the library volume to 0 and restores the pre-mute level
// on unmute, since AirPlay has no discrete mute primitive.
func (s *AirPlaySender) SetMute(muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return ErrNoAirPlayClient
	}
	if muted && !s.muted {
		s.preMuteVol = s.volume
		s.muted = true
		return s.client.SetVolume(0)
	}
	if !muted && s.muted {
		s.muted = false
		return s.client.SetVolume(s.preMuteVol)
	}
	return nil
}

func (s *AirPlaySender) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// CurrentPosition: the AirPlay client library is the seam that would
// report true playback position; this bridge doesn't require the
// external library to, so it always defers to the VirtualDevice's
// wall-clock extrapolation.
func (s *AirPlaySender) CurrentPosition() (float64, bool) { return 0, false }

var _ Output = (*AirPlaySender)(nil)
