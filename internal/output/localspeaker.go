package output

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"airbridge/internal/audio"
	"airbridge/internal/dsp"
	"airbridge/internal/eventbus"
	"airbridge/internal/observability"
)

// ChunkDurationMS and BufferSizeChunks size the host-speaker playback
// queue: each chunk holds ChunkDurationMS worth of audio, and the queue
// holds up to BufferSizeChunks of them before the writer starts dropping
// the oldest.
const (
	ChunkDurationMS  = 100
	BufferSizeChunks = 10
)

// LocalSpeakerConfig configures the host-speaker output variant.
type LocalSpeakerConfig struct {
	CacheDir   string
	DeviceID   string
	SampleRate int
	Channels   int
}

// LocalSpeaker is the host-speaker output variant: a portaudio callback
// stream pulls from a bounded chunk queue; a writer goroutine reads
// Decoder PCM, applies DSP, and enqueues, dropping the oldest chunk when
// the queue is full.
type LocalSpeaker struct {
	cfg    LocalSpeakerConfig
	graph  *dsp.Graph
	volCtl SystemVolumeController
	bus    *eventbus.Bus
	logger *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	source  *pipelineF32Source
	queue   chan []float32
	running bool
	cancel  context.CancelFunc
}

// NewLocalSpeaker builds a LocalSpeaker output. A nil volCtl installs
// NoopVolumeController(), degrading silently.
func NewLocalSpeaker(cfg LocalSpeakerConfig, graph *dsp.Graph, volCtl SystemVolumeController, bus *eventbus.Bus, logger *slog.Logger) *LocalSpeaker {
	if logger == nil {
		logger = slog.Default()
	}
	if volCtl == nil {
		volCtl = NoopVolumeController()
	}
	return &LocalSpeaker{
		cfg:    cfg,
		graph:  graph,
		volCtl: volCtl,
		bus:    bus,
		logger: logger.With(slog.String("component", "local_speaker"), slog.String("device_id", cfg.DeviceID)),
	}
}

// HasPlaybackDevice reports whether portaudio can see a default output
// device, used by the Device Manager's server-speaker gating.
func HasPlaybackDevice() bool {
	if err := portaudio.Initialize(); err != nil {
		return false
	}
	defer portaudio.Terminate()
	dev, err := portaudio.DefaultOutputDevice()
	return err == nil && dev != nil
}

func (s *LocalSpeaker) chunkSamples() int {
	return s.cfg.SampleRate * ChunkDurationMS / 1000
}

func (s *LocalSpeaker) Play(ctx context.Context, url string, position float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()

	pipelineCtx, cancel := context.WithCancel(ctx)
	source, err := newPipelineF32Source(pipelineCtx, s.cfg.CacheDir, s.cfg.DeviceID, url, position, s.cfg.SampleRate, s.cfg.Channels, s.graph, s.logger)
	if err != nil {
		cancel()
		return fmt.Errorf("build f32 audio source: %w", err)
	}

	if err := portaudio.Initialize(); err != nil {
		cancel()
		_ = source.Close()
		return fmt.Errorf("initialize portaudio: %w", err)
	}

	queue := make(chan []float32, BufferSizeChunks)
	chunk := s.chunkSamples()

	stream, err := portaudio.OpenDefaultStream(0, s.cfg.Channels, float64(s.cfg.SampleRate), chunk, func(out []float32) {
		s.audioCallback(out, queue)
	})
	if err != nil {
		cancel()
		_ = source.Close()
		portaudio.Terminate()
		return fmt.Errorf("open portaudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		cancel()
		_ = source.Close()
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("start portaudio stream: %w", err)
	}

	s.stream = stream
	s.source = source
	s.queue = queue
	s.cancel = cancel
	s.running = true

	go s.writerLoop(pipelineCtx, source, queue, chunk)
	return nil
}

// audioCallback drains queued chunks into out, zero-filling when the
// queue has nothing ready (underrun) rather than blocking the OS audio
// thread.
func (s *LocalSpeaker) audioCallback(out []float32, queue chan []float32) {
	filled := 0
	for filled < len(out) {
		select {
		case chunk, ok := <-queue:
			if !ok {
				break
			}
			n := copy(out[filled:], chunk)
			filled += n
		default:
			for i := filled; i < len(out); i++ {
				out[i] = 0
			}
			return
		}
	}
}

// writerLoop reads PCM from the decoder, applies DSP, and enqueues
// chunks, dropping the oldest on a full queue.
func (s *LocalSpeaker) writerLoop(ctx context.Context, source *pipelineF32Source, queue chan []float32, chunkFrames int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		chunk := source.ReadChunk(chunkFrames)
		if chunk == nil {
			if s.bus != nil {
				s.bus.Publish(eventbus.StateChanged(s.cfg.DeviceID, eventbus.StateStopped))
			}
			return
		}

		select {
		case queue <- chunk:
		default:
			select {
			case <-queue:
			default:
			}
			select {
			case queue <- chunk:
			default:
			}
		}
	}
}

func (s *LocalSpeaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	return nil
}

func (s *LocalSpeaker) teardownLocked() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.stream != nil {
		_ = s.stream.Stop()
		_ = s.stream.Close()
		portaudio.Terminate()
		s.stream = nil
	}
	if s.source != nil {
		_ = s.source.Close()
		s.source = nil
	}
	s.running = false
}

// Pause on the local speaker stops the stream; a fresh Play resumes from
// the VirtualDevice's tracked position (Seek semantics), since there is
// no cheaper pause primitive for a growing cache file already being
// consumed.
func (s *LocalSpeaker) Pause() error { return s.Stop() }

func (s *LocalSpeaker) Seek(ctx context.Context, position float64) error {
	return s.Stop()
}

func (s *LocalSpeaker) SetVolume(volume int) error {
	return s.volCtl.SetVolume(volume)
}

func (s *LocalSpeaker) SetMute(muted bool) error {
	return s.volCtl.SetMute(muted)
}

func (s *LocalSpeaker) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *LocalSpeaker) CurrentPosition() (float64, bool) { return 0, false }

var _ Output = (*LocalSpeaker)(nil)

// pipelineF32Source is the LocalSpeaker-side counterpart of
// pipelineAudioSource: same Downloader→Decoder→DSP wiring but emitting
// float32 chunks instead of an AudioSource's byte-oriented ReadFrames.
type pipelineF32Source struct {
	downloader *audio.Downloader
	decoder    *audio.Decoder
	graph      *dsp.Graph
	channels   int
	deviceID   string
}

func newPipelineF32Source(ctx context.Context, cacheDir, deviceID, url string, seekPosition float64, sampleRate, channels int, graph *dsp.Graph, logger *slog.Logger) (*pipelineF32Source, error) {
	dl := audio.NewDownloader(audio.DownloaderConfig{
		CacheDir:        cacheDir,
		CacheFilename:   deviceID + "_play_cache",
		ContainerFormat: "matroska",
		FileExtension:   "mkv",
	}, deviceID, logger)
	dl.Start(url, seekPosition)

	path := dl.FilePath()
	if err := audio.WaitForCacheThreshold(ctx, path, cacheThresholdBytes, cacheThresholdTimeout); err != nil {
		logger.Warn("cache did not reach threshold before timeout, starting decoder anyway", slog.Any("error", err))
	}

	dec := audio.NewDecoder(audio.DecoderConfig{
		SampleRate: sampleRate,
		Channels:   channels,
		Format:     audio.FormatF32LE,
		Quiet:      true,
	}, deviceID, logger)
	if err := dec.Start(path); err != nil {
		dl.Cleanup()
		return nil, err
	}

	return &pipelineF32Source{downloader: dl, decoder: dec, graph: graph, channels: channels, deviceID: deviceID}, nil
}

// ReadChunk reads frames samples per channel, applies DSP, and returns
// them as interleaved float32, or nil at EOF.
func (p *pipelineF32Source) ReadChunk(frames int) []float32 {
	bytesPerFrame := p.channels * 4
	buf := make([]byte, frames*bytesPerFrame)
	read, err := p.decoder.Read(buf)
	if read == 0 || err != nil {
		return nil
	}
	buf = buf[:read]
	n := read / bytesPerFrame
	if n == 0 {
		return nil
	}

	samples := make([]float32, n*p.channels)
	for i := range samples {
		samples[i] = decodeF32LE(buf[i*4:])
	}
	if p.graph != nil {
		start := time.Now()
		p.graph.Process(samples, n, p.channels)
		observability.DSPProcessingDuration.WithLabelValues(p.deviceID).Observe(time.Since(start).Seconds())
	}
	return samples
}

func decodeF32LE(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func (p *pipelineF32Source) Close() error {
	p.decoder.Stop()
	p.downloader.Cleanup()
	return nil
}
