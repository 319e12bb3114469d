package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"time"
)

// PCMFormat is the sample format ffmpeg is asked to decode to.
type PCMFormat string

const (
	// FormatS16LE is used for the AirPlay output path (the AirPlay
	// client library expects big-endian S16 and byte-swaps on the
	// little-endian host; the decoder itself always produces
	// little-endian, matching the AudioSource contract).
	FormatS16LE PCMFormat = "s16le"
	// FormatF32LE is used for the local-speaker output path.
	FormatF32LE PCMFormat = "f32le"
)

func (f PCMFormat) bytesPerSample() int {
	switch f {
	case FormatS16LE:
		return 2
	case FormatF32LE:
		return 4
	default:
		return 0
	}
}

func (f PCMFormat) codec() string {
	switch f {
	case FormatS16LE:
		return "pcm_s16le"
	case FormatF32LE:
		return "pcm_f32le"
	default:
		return ""
	}
}

// DecoderConfig mirrors DecoderConfig from ffmpeg_decoder.py.
type DecoderConfig struct {
	SampleRate   int
	Channels     int
	Format       PCMFormat
	Realtime     bool
	SeekPosition float64
	Quiet        bool
}

// BytesPerFrame is channels * bytes-per-sample for one interleaved frame.
func (c DecoderConfig) BytesPerFrame() int {
	return c.Channels * c.Format.bytesPerSample()
}

// Decoder runs ffmpeg against a growing input file (or URL) and exposes
// its stdout as a blocking PCM byte stream.
type Decoder struct {
	cfg    DecoderConfig
	tag    string
	logger *slog.Logger

	cmd     *exec.Cmd
	stdout  io.ReadCloser
	started bool
}

// NewDecoder builds a Decoder. Call Start to spawn ffmpeg against an
// input path.
func NewDecoder(cfg DecoderConfig, tag string, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{cfg: cfg, tag: tag, logger: logger.With(slog.String("component", "decoder"), slog.String("tag", tag))}
}

// IsRunning reports whether the ffmpeg process is still alive.
func (d *Decoder) IsRunning() bool {
	if d.cmd == nil || d.cmd.Process == nil {
		return false
	}
	return d.cmd.ProcessState == nil
}

// BytesPerFrame delegates to the configured PCM format.
func (d *Decoder) BytesPerFrame() int { return d.cfg.BytesPerFrame() }

// Start is idempotent: calling it twice on an already-started decoder is
// a no-op, mirroring the source's `if self._started: return`.
func (d *Decoder) Start(inputSource string) error {
	if d.started {
		return nil
	}

	args := []string{}
	if d.cfg.Quiet {
		args = append(args, "-hide_banner", "-loglevel", "error")
	}
	if d.cfg.SeekPosition > 0 {
		args = append(args, "-ss", strconv.FormatFloat(d.cfg.SeekPosition, 'f', -1, 64))
	}
	if d.cfg.Realtime {
		args = append(args, "-re")
	}
	args = append(args, "-i", inputSource, "-vn",
		"-acodec", d.cfg.Format.codec(),
		"-ar", strconv.Itoa(d.cfg.SampleRate),
		"-ac", strconv.Itoa(d.cfg.Channels),
		"-f", string(d.cfg.Format), "pipe:1")

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stdin = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		d.logger.Error("failed to start decoder", slog.Any("error", err))
		return fmt.Errorf("start ffmpeg decoder: %w", err)
	}

	d.cmd = cmd
	d.stdout = stdout
	d.started = true
	return nil
}

// Stop terminates the decoder process and releases its pipe.
func (d *Decoder) Stop() {
	if d.cmd != nil {
		terminateProcess(d.cmd)
	}
	if d.stdout != nil {
		_ = d.stdout.Close()
	}
	d.cmd = nil
	d.stdout = nil
	d.started = false
}

// Read blocks for up to size bytes of PCM data, returning fewer on EOF.
// A nil/zero-length read (and io.EOF) signals end of stream, matching the
// source's bare-except-returns-empty-bytes contract.
func (d *Decoder) Read(buf []byte) (int, error) {
	if d.stdout == nil {
		return 0, io.EOF
	}
	n, err := io.ReadFull(d.stdout, buf)
	if err == io.ErrUnexpectedEOF {
		return n, io.EOF
	}
	return n, err
}

// WaitForCacheThreshold blocks until path has at least minBytes or
// timeout elapses — the "Decoder only begins reading once the file size
// passes a configured threshold" before the decoder starts reading it.
func WaitForCacheThreshold(ctx context.Context, path string, minBytes int64, timeout time.Duration) error {
	return waitForThreshold(ctx, path, minBytes, timeout)
}
