package output

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"airbridge/internal/audio"
	"airbridge/internal/dsp"
	"airbridge/internal/observability"
)

// pipelineAudioSource wires Downloader → Decoder → DSP Graph together and
// exposes the result as an AudioSource for AirPlay playback.
type pipelineAudioSource struct {
	mu sync.Mutex

	downloader *audio.Downloader
	decoder    *audio.Decoder
	graph      *dsp.Graph
	deviceID   string

	sampleRate int
	channels   int
	duration   float64
	metadata   map[string]any

	bigEndian bool // AirPlay library expects big-endian S16
	closed    bool
}

const cacheThresholdBytes = 100 * 1024
const cacheThresholdTimeout = 30 * time.Second

// newPipelineAudioSource starts the downloader and, once enough data has
// buffered (or the timeout elapses), the decoder, and returns a source
// ready for ReadFrames. bigEndian controls the byte-swap the AirPlay
// AudioSource contract requires.
func newPipelineAudioSource(ctx context.Context, cacheDir, deviceID, url string, seekPosition float64, sampleRate, channels int, graph *dsp.Graph, bigEndian bool, logger *slog.Logger) (*pipelineAudioSource, error) {
	dl := audio.NewDownloader(audio.DownloaderConfig{
		CacheDir:        cacheDir,
		CacheFilename:   deviceID + "_airplay_cache",
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
		Format:     audio.FormatS16LE,
		Quiet:      true,
	}, deviceID, logger)
	if err := dec.Start(path); err != nil {
		dl.Cleanup()
		return nil, err
	}

	return &pipelineAudioSource{
		downloader: dl,
		decoder:    dec,
		graph:      graph,
		deviceID:   deviceID,
		sampleRate: sampleRate,
		channels:   channels,
		bigEndian:  bigEndian,
		metadata:   map[string]any{},
	}, nil
}

func (p *pipelineAudioSource) SampleRate() int      { return p.sampleRate }
func (p *pipelineAudioSource) Channels() int        { return p.channels }
func (p *pipelineAudioSource) SampleSize() int      { return 2 }
func (p *pipelineAudioSource) Duration() float64    { p.mu.Lock(); defer p.mu.Unlock(); return p.duration }
func (p *pipelineAudioSource) GetMetadata() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]any{"duration": p.duration}
}

func (p *pipelineAudioSource) SetDuration(d float64) {
	p.mu.Lock()
	p.duration = d
	p.mu.Unlock()
}

// ReadFrames pulls n frames of PCM from the decoder, runs them through
// the DSP graph, and returns them as big-endian S16 if bigEndian is set
// (byte-swapping the little-endian decoder output), or a zero-length
// slice at EOF.
func (p *pipelineAudioSource) ReadFrames(n int) []byte {
	bytesPerFrame := p.channels * 2
	buf := make([]byte, n*bytesPerFrame)
	read, err := p.decoder.Read(buf)
	if read == 0 || err != nil {
		return nil
	}
	buf = buf[:read]
	frames := read / bytesPerFrame
	if frames == 0 {
		return nil
	}

	samples := make([]float32, frames*p.channels)
	for i := 0; i < frames*p.channels; i++ {
		v := int16(binary.LittleEndian.Uint16(buf[i*2:]))
		samples[i] = float32(v) / 32768.0
	}

	if p.graph != nil {
		start := time.Now()
		p.graph.Process(samples, frames, p.channels)
		observability.DSPProcessingDuration.WithLabelValues(p.deviceID).Observe(time.Since(start).Seconds())
	}

	out := make([]byte, frames*bytesPerFrame)
	for i, s := range samples {
		v := int16(clampSample(s) * 32767.0)
		if p.bigEndian {
			binary.BigEndian.PutUint16(out[i*2:], uint16(v))
		} else {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
		}
	}
	return out
}

func clampSample(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func (p *pipelineAudioSource) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.decoder.Stop()
	p.downloader.Cleanup()
	return nil
}
