package audio

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"time"

	_ "golang.org/x/image/webp"
)

// CoverArt is the validated, best-effort result of probing a cover-url
// from DIDL-Lite metadata — a feature not
// present in the distilled spec: it only confirms the URL decodes as a
// known image format and reports its dimensions, it never blocks
// SetAVTransportURI.
type CoverArt struct {
	URL           string
	ContentType   string
	Width, Height int
}

// ProbeCoverArt fetches the first few KB of url and decodes just enough
// to report its format and dimensions, registering WebP decoding support
// (not built into the stdlib image package) alongside GIF/JPEG/PNG.
// Fetch and decode failures are logged at debug level, and every failure
// is returned as an error; an empty url returns (nil, nil).
func ProbeCoverArt(ctx context.Context, url string, logger *slog.Logger) (*CoverArt, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if url == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build cover-art request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.Debug("cover-art fetch failed", slog.Any("error", err))
		return nil, fmt.Errorf("fetch cover-art: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, 512*1024)
	cfg, format, err := image.DecodeConfig(limited)
	if err != nil {
		logger.Debug("cover-art did not decode as a known image format", slog.Any("error", err))
		return nil, fmt.Errorf("decode cover-art: %w", err)
	}

	return &CoverArt{
		URL:         url,
		ContentType: "image/" + format,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}
