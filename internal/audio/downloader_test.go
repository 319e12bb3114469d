package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloader_FilePath(t *testing.T) {
	d := NewDownloader(DownloaderConfig{
		CacheDir:        "/tmp/cache",
		CacheFilename:   "dev-1_airplay_cache",
		ContainerFormat: "matroska",
		FileExtension:   "mkv",
	}, "dev-1", nil)

	assert.Equal(t, filepath.Join("/tmp/cache", "dev-1_airplay_cache.mkv"), d.FilePath())
}

func TestDownloader_FileSizeZeroWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	d := NewDownloader(DownloaderConfig{CacheDir: dir, CacheFilename: "missing", FileExtension: "mkv"}, "t", nil)
	assert.EqualValues(t, 0, d.FileSize())
}

func TestDownloader_CleanupFileRemovesExisting(t *testing.T) {
	dir := t.TempDir()
	d := NewDownloader(DownloaderConfig{CacheDir: dir, CacheFilename: "present", FileExtension: "mkv"}, "t", nil)
	require.NoError(t, os.WriteFile(d.FilePath(), []byte("data"), 0o644))

	d.CleanupFile()

	_, err := os.Stat(d.FilePath())
	assert.True(t, os.IsNotExist(err))
}

func TestDownloader_StateBeforeStart(t *testing.T) {
	d := NewDownloader(DownloaderConfig{CacheDir: t.TempDir(), CacheFilename: "x", FileExtension: "mkv"}, "t", nil)
	assert.False(t, d.IsDownloading())
	assert.False(t, d.IsCompleted())
	assert.NoError(t, d.Err())
}
