// Package configstore persists per-device DSP settings to a JSON document
// and reacts to DSP_CHANGED events. Unlike the
// source this was distilled from (a plain json.dump with no durability
// guarantee), writes here are atomic: a temp file is written and renamed
// over the target path, so a crash mid-write can never corrupt the
// previously-good file.
package configstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"airbridge/internal/dsp"
	"airbridge/internal/eventbus"
)

// DeviceConfig is the persisted per-device DSP state.
type DeviceConfig struct {
	DSPEnabled bool           `json:"dsp_enabled"`
	DSPConfig  map[string]any `json:"dsp_config"`
}

type document struct {
	Devices map[string]DeviceConfig `json:"devices"`
}

// Store is the JSON-backed config store. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	path   string
	doc    document
	logger *slog.Logger
}

// New loads path (if present) and subscribes to DSP_CHANGED on bus so
// that subsequent DSP edits are persisted automatically. A missing or
// unparseable file is treated as an empty store, never a fatal error.
func New(path string, bus *eventbus.Bus, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:   path,
		doc:    document{Devices: make(map[string]DeviceConfig)},
		logger: logger.With(slog.String("component", "configstore")),
	}
	s.load()

	if bus != nil {
		bus.Subscribe(eventbus.TypeDSPChanged, "", s.onDSPChanged)
	}
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read config file, starting empty", slog.Any("error", err))
		}
		return
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("config file is not valid JSON, starting empty", slog.Any("error", err))
		return
	}
	if doc.Devices == nil {
		doc.Devices = make(map[string]DeviceConfig)
	}
	s.doc = doc
}

// save writes the document atomically: write to a temp file in the same
// directory, then rename over the target path.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename temp config file: %w", err)
	}
	return nil
}

func (s *Store) onDSPChanged(e eventbus.Event) error {
	if e.DeviceID == "" {
		return nil
	}
	enabled, _ := e.Data["enabled"].(bool)
	config, _ := e.Data["config"].(map[string]any)
	s.SetDeviceConfig(e.DeviceID, enabled, config)
	return nil
}

// GetDeviceConfig returns the persisted config for deviceID, or the zero
// value if none is stored.
func (s *Store) GetDeviceConfig(deviceID string) DeviceConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Devices[deviceID]
}

// SetDeviceConfig stores enabled/config for deviceID and saves to disk.
// Save failures are logged, not returned, so a filesystem hiccup never
// crashes the caller (typically an event-bus handler).
func (s *Store) SetDeviceConfig(deviceID string, enabled bool, config map[string]any) {
	s.mu.Lock()
	s.doc.Devices[deviceID] = DeviceConfig{DSPEnabled: enabled, DSPConfig: config}
	s.mu.Unlock()

	if err := s.save(); err != nil {
		s.logger.Error("failed to persist config", slog.Any("error", err))
	}
}

// GetDSPEnabled reports whether deviceID has DSP enabled, defaulting to
// false when unknown.
func (s *Store) GetDSPEnabled(deviceID string) bool {
	return s.GetDeviceConfig(deviceID).DSPEnabled
}

// GetDSPConfig returns the persisted DSP config for deviceID as a typed
// dsp.Config, falling back to dsp.DefaultConfig() when nothing is stored
// or the stored map is empty.
func (s *Store) GetDSPConfig(deviceID string) dsp.Config {
	dc := s.GetDeviceConfig(deviceID)
	if len(dc.DSPConfig) == 0 {
		return dsp.DefaultConfig()
	}
	return dsp.DefaultConfig().Merge(dc.DSPConfig)
}
