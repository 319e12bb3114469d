// Package output implements the two playback targets a VirtualDevice can
// drive: AirPlaySender (exposes an AudioSource to an external AirPlay
// client library) and LocalSpeaker (writes to the host sound card via
// portaudio). Both share the AudioSource-producing pipeline in
// internal/audio and internal/dsp.
package output

import "context"

// Output is the common interface a VirtualDevice drives. It mirrors
// original_source/output/base.py's BaseOutput, generalized to both
// concrete variants.
type Output interface {
	// Play starts streaming url from position (seconds) into the
	// output. A second Play call must abort any in-flight stream first.
	Play(ctx context.Context, url string, position float64) error
	Stop() error
	// Pause freezes playback where supported; AirPlaySender implements
	// it as Stop, since the AirPlay transport has no pause primitive.
	Pause() error
	// Seek tears down the current stream; the VirtualDevice then restarts
	// it with Play at the new offset when the device is playing.
	Seek(ctx context.Context, position float64) error
	SetVolume(volume int) error
	SetMute(muted bool) error
	IsRunning() bool
	// CurrentPosition returns the output's live playback position when
	// it can report one more accurately than wall-clock extrapolation;
	// ok is false when the output has no better answer than the
	// VirtualDevice's own position + elapsed-time computation.
	CurrentPosition() (position float64, ok bool)
}

// AudioSource is the pull-model PCM interface consumed by an external
// AirPlay/RAOP client library. This bridge only defines the seam: the
// RTSP handshake and ALAC encoding live in that external library.
type AudioSource interface {
	SampleRate() int
	Channels() int
	SampleSize() int // bytes per sample, e.g. 2 for S16
	Duration() float64
	GetMetadata() map[string]any
	// ReadFrames returns exactly n*Channels()*SampleSize() bytes while
	// data is available, or a zero-length slice at EOF/error.
	ReadFrames(n int) []byte
	Close() error
}

// SystemVolumeController abstracts the OS-specific volume shim behind a
// small interface so LocalSpeaker never talks to D-Bus/CoreAudio/a mixer
// CLI directly.
type SystemVolumeController interface {
	GetVolume() (int, error)
	SetVolume(volume int) error
	GetMute() (bool, error)
	SetMute(muted bool) error
	Available() bool
}

// noopVolumeController is used whenever no platform-specific controller
// is available; every call silently degrades rather than failing.
type noopVolumeController struct{}

func (noopVolumeController) GetVolume() (int, error)   { return 0, nil }
func (noopVolumeController) SetVolume(int) error       { return nil }
func (noopVolumeController) GetMute() (bool, error)     { return false, nil }
func (noopVolumeController) SetMute(bool) error         { return nil }
func (noopVolumeController) Available() bool            { return false }

// NoopVolumeController returns a controller that always degrades
// silently.
func NoopVolumeController() SystemVolumeController { return noopVolumeController{} }
