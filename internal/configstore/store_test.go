package configstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airbridge/internal/eventbus"
)

func TestStore_MissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "config.json"), nil, nil)

	assert.False(t, s.GetDSPEnabled("dev-1"))
}

func TestStore_CorruptFileStartsEmptyInsteadOfFailing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := New(path, nil, nil)
	assert.False(t, s.GetDSPEnabled("dev-1"))
}

func TestStore_SetAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	s := New(path, nil, nil)
	s.SetDeviceConfig("dev-1", true, map[string]any{"use_stereo": true, "stereo_width": 1.5})

	reloaded := New(path, nil, nil)
	dc := reloaded.GetDeviceConfig("dev-1")
	assert.True(t, dc.DSPEnabled)
	assert.Equal(t, true, dc.DSPConfig["use_stereo"])
}

func TestStore_ReactsToDSPChangedEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	bus := eventbus.New(nil)
	s := New(path, bus, nil)

	bus.Publish(eventbus.DSPChanged("dev-1", true, map[string]any{"use_compression": true}))

	dc := s.GetDeviceConfig("dev-1")
	assert.True(t, dc.DSPEnabled)
	assert.Equal(t, true, dc.DSPConfig["use_compression"])
}

func TestStore_GetDSPConfigFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "config.json"), nil, nil)

	cfg := s.GetDSPConfig("unknown-device")
	assert.False(t, cfg.EQEnabled)
	assert.Equal(t, 1.0, cfg.LowFreqGain)
}

func TestStore_AtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	s := New(path, nil, nil)

	s.SetDeviceConfig("dev-1", false, map[string]any{})

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}
