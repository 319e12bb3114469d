package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Metadata is the subset of ffprobe's output this bridge cares about,
// mirroring probe_media()'s return value in original_source/core/ffprobe.py.
type Metadata struct {
	CodecName  string
	SampleRate int
	Channels   int
	BitRate    int64
	Duration   float64
	Title      string
	Artist     string
	Album      string
}

type probeFormat struct {
	Duration string            `json:"duration"`
	BitRate  string            `json:"bit_rate"`
	Tags     map[string]string `json:"tags"`
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitRate    string `json:"bit_rate"`
	Duration   string `json:"duration"`
}

type probeResult struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

// ProbeMedia runs ffprobe against url and extracts the first audio
// stream's codec/rate/channels/bitrate/duration plus title/artist/album
// tags, falling back from stream to format level. It never returns an
// error that should abort playback: timeouts and parse failures are
// logged and reported as (nil, err) for the caller to treat as "no
// metadata available", matching the source's "return None" behavior.
func ProbeMedia(ctx context.Context, url string, timeout time.Duration, logger *slog.Logger) (*Metadata, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet", "-print_format", "json",
		"-show_format", "-show_streams", "-select_streams", "a:0", url)

	out, err := cmd.Output()
	if err != nil {
		logger.Warn("ffprobe failed", slog.Any("error", err), slog.String("url", url))
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	var result probeResult
	if err := json.Unmarshal(out, &result); err != nil {
		logger.Warn("ffprobe returned unparsable JSON", slog.Any("error", err))
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	md := &Metadata{}
	var stream *probeStream
	if len(result.Streams) > 0 {
		stream = &result.Streams[0]
	}
	if stream != nil {
		md.CodecName = stream.CodecName
		md.SampleRate = atoiOr(stream.SampleRate, 0)
		md.Channels = stream.Channels
		md.BitRate = atoi64Or(stream.BitRate, 0)
		md.Duration = atofOr(stream.Duration, 0)
	}
	if md.BitRate == 0 {
		md.BitRate = atoi64Or(result.Format.BitRate, 0)
	}
	if md.Duration == 0 {
		md.Duration = atofOr(result.Format.Duration, 0)
	}

	md.Title, md.Artist, md.Album = extractTags(result.Format.Tags)

	return md, nil
}

func extractTags(tags map[string]string) (title, artist, album string) {
	for k, v := range tags {
		switch strings.ToLower(k) {
		case "title":
			title = v
		case "artist":
			artist = v
		case "album":
			album = v
		}
	}
	return
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func atoi64Or(s string, def int64) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func atofOr(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

// FormatBitrate renders bitrate in bps/kbps/Mbps thresholds, matching
// original_source/core/ffprobe.py::format_bitrate.
func FormatBitrate(bitrate int64) string {
	switch {
	case bitrate <= 0:
		return ""
	case bitrate >= 1_000_000:
		return fmt.Sprintf("%d Mbps", bitrate/1_000_000)
	case bitrate >= 1000:
		return fmt.Sprintf("%d kbps", bitrate/1000)
	default:
		return fmt.Sprintf("%d bps", bitrate)
	}
}
