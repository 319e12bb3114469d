// Package audio implements the download/decode half of the pipeline:
// Downloader stream-copies a remote URL into a growing local cache file,
// Decoder reads that file and produces PCM, and Probe extracts codec
// metadata — each by shelling out to ffmpeg/ffprobe exactly as
// original_source/core/{ffmpeg_downloader,ffmpeg_decoder,ffprobe}.py do.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// DownloaderConfig mirrors DownloaderConfig from ffmpeg_downloader.py.
type DownloaderConfig struct {
	CacheDir        string
	CacheFilename   string
	ContainerFormat string // ffmpeg -f value, e.g. "matroska"
	FileExtension   string // e.g. "mkv"
}

// Downloader stream-copies a remote URL into a local cache file without
// re-encoding, so the Decoder can read an arbitrary source codec through
// ffmpeg's own demuxer/decoder instead of this process doing format
// detection.
type Downloader struct {
	cfg    DownloaderConfig
	tag    string
	logger *slog.Logger

	mu          sync.Mutex
	cmd         *exec.Cmd
	downloading bool
	completed   bool
	err         error
	seekPos     float64

	wg sync.WaitGroup
}

// NewDownloader builds a Downloader that writes into cfg.CacheDir. tag is
// used only in log lines, matching the source's per-instance tag.
func NewDownloader(cfg DownloaderConfig, tag string, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{cfg: cfg, tag: tag, logger: logger.With(slog.String("component", "downloader"), slog.String("tag", tag))}
}

// FilePath is the cache file this downloader writes/has written.
func (d *Downloader) FilePath() string {
	return filepath.Join(d.cfg.CacheDir, d.cfg.CacheFilename+"."+d.cfg.FileExtension)
}

// IsDownloading reports whether a copy is currently in flight.
func (d *Downloader) IsDownloading() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.downloading
}

// IsCompleted reports whether the last copy finished with exit code 0.
func (d *Downloader) IsCompleted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completed
}

// Err returns the last copy's error, if any.
func (d *Downloader) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// FileSize returns the current cache file size, or 0 if it doesn't exist
// yet or stat fails — mirroring get_file_size()'s guarded try/except.
func (d *Downloader) FileSize() int64 {
	info, err := os.Stat(d.FilePath())
	if err != nil {
		return 0
	}
	return info.Size()
}

// Start stops any prior copy, removes any prior cache file, and spawns a
// background copy of url starting at seekPosition seconds.
func (d *Downloader) Start(url string, seekPosition float64) {
	d.Stop()
	d.CleanupFile()

	d.mu.Lock()
	d.downloading = true
	d.completed = false
	d.err = nil
	d.seekPos = seekPosition
	d.mu.Unlock()

	d.wg.Add(1)
	go d.run(url, seekPosition)
}

func (d *Downloader) run(url string, seekPosition float64) {
	defer d.wg.Done()

	args := []string{"-y"}
	if seekPosition > 0 {
		args = append(args, "-ss", strconv.FormatFloat(seekPosition, 'f', -1, 64))
	}
	args = append(args, "-i", url, "-vn", "-c:a", "copy", "-f", d.cfg.ContainerFormat, d.FilePath())

	cmd := exec.Command("ffmpeg", args...)
	cmd.Stdin = nil
	stderr, err := cmd.StderrPipe()
	if err != nil {
		d.finish(false, fmt.Errorf("stderr pipe: %w", err))
		return
	}
	cmd.Stdout = nil

	if err := cmd.Start(); err != nil {
		d.finish(false, fmt.Errorf("start ffmpeg: %w", err))
		return
	}

	d.mu.Lock()
	d.cmd = cmd
	d.mu.Unlock()

	errBuf := make([]byte, 0, 4096)
	buf := make([]byte, 4096)
	for {
		n, rerr := stderr.Read(buf)
		if n > 0 && len(errBuf) < 200 {
			room := 200 - len(errBuf)
			if n < room {
				room = n
			}
			errBuf = append(errBuf, buf[:room]...)
		}
		if rerr != nil {
			break
		}
	}

	waitErr := cmd.Wait()

	d.mu.Lock()
	wasDownloading := d.downloading
	d.mu.Unlock()

	if !wasDownloading {
		d.logger.Debug("download cancelled")
		d.finish(false, nil)
		return
	}

	if waitErr == nil {
		size := d.FileSize()
		d.logger.Info("download completed", slog.Int64("bytes", size))
		d.finish(true, nil)
		return
	}

	d.finish(false, fmt.Errorf("ffmpeg exited: %w: %s", waitErr, string(errBuf)))
}

func (d *Downloader) finish(completed bool, err error) {
	d.mu.Lock()
	d.completed = completed
	d.err = err
	d.downloading = false
	d.cmd = nil
	d.mu.Unlock()
	if err != nil {
		d.logger.Warn("download failed", slog.Any("error", err))
	}
}

// Stop terminates an in-flight copy (SIGTERM, then SIGKILL after the
// grace period) and waits for the worker goroutine to exit.
func (d *Downloader) Stop() {
	d.mu.Lock()
	d.downloading = false
	cmd := d.cmd
	d.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		terminateProcess(cmd)
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}

// CleanupFile removes the cache file if present.
func (d *Downloader) CleanupFile() {
	path := d.FilePath()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("failed to remove cache file", slog.Any("error", err))
	}
}

// Cleanup stops any in-flight copy and removes the cache file.
func (d *Downloader) Cleanup() {
	d.Stop()
	d.CleanupFile()
}

const killGrace = 2 * time.Second

// terminateProcess sends SIGTERM and escalates to SIGKILL after
// killGrace.
func terminateProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(killGrace):
		_ = cmd.Process.Kill()
	}
}

// waitForThreshold blocks (up to timeout) until the cache file reaches
// minBytes, or returns early on ctx cancellation. Used by a Decoder to
// avoid starting before enough data has been buffered.
func waitForThreshold(ctx context.Context, path string, minBytes int64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if info, err := os.Stat(path); err == nil && info.Size() >= minBytes {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for %d bytes in %s", minBytes, path)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
