package device

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"airbridge/internal/configstore"
	"airbridge/internal/dsp"
	"airbridge/internal/eventbus"
	"airbridge/internal/output"
)

// OutputFactory builds and attaches the Output variant (and backing DSP
// graph) a newly-created VirtualDevice should drive. Registered once at
// bootstrap time, matching original_source/device/device_manager.py's
// set_output_factory.
type OutputFactory func(d *VirtualDevice) (output.Output, *dsp.Graph, error)

// ManagerConfig configures the Manager.
type ManagerConfig struct {
	EnableServerSpeaker bool
	ServerSpeakerName   string
	ScanInterval        int // seconds, 0 = DefaultScanInterval
	ScanTimeout         int // seconds, 0 = DefaultScanTimeout
	OfflineThreshold    int // 0 = DefaultOfflineThreshold
	Exclude             []ExcludeRule
}

// Manager owns the set of Virtual Devices: it creates them from scanner
// callbacks and one optional local-speaker device, and wires each to an
// Output via the registered OutputFactory. Matches
// original_source/device/device_manager.py::DeviceManager.
type Manager struct {
	cfg     ManagerConfig
	bus     *eventbus.Bus
	store   *configstore.Store
	scanner *Scanner
	factory OutputFactory
	logger  *slog.Logger

	mu         sync.Mutex
	devices    map[string]*VirtualDevice
	airplayMap map[string]string // scan-identifier -> device-id
	running    bool

	offlineSub eventbus.Subscription
}

// NewManager builds a Manager. SetOutputFactory must be called before
// Start for any device to become playable.
func NewManager(cfg ManagerConfig, bus *eventbus.Bus, store *configstore.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServerSpeakerName == "" {
		cfg.ServerSpeakerName = "This Computer"
	}
	m := &Manager{
		cfg:        cfg,
		bus:        bus,
		store:      store,
		logger:     logger.With(slog.String("component", "device_manager")),
		devices:    make(map[string]*VirtualDevice),
		airplayMap: make(map[string]string),
	}
	m.scanner = NewScanner(
		durationOrDefault(cfg.ScanInterval, DefaultScanInterval),
		durationOrDefault(cfg.ScanTimeout, DefaultScanTimeout),
		cfg.OfflineThreshold,
		cfg.Exclude,
		logger,
	)
	m.scanner.OnDeviceFound(m.onAirPlayFound)
	m.scanner.OnDeviceLost(func(identifier string) {
		m.onAirPlayLost(identifier)
		m.bus.Publish(eventbus.DeviceOfflineThresholdReached(identifier))
	})
	return m
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// SetOutputFactory registers the bootstrap-provided Output constructor.
func (m *Manager) SetOutputFactory(factory OutputFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factory = factory
}

// Start creates the server-speaker device (if enabled and a playback
// device exists), performs an initial synchronous scan, and launches the
// periodic scanner loop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.offlineSub = m.bus.Subscribe(eventbus.TypeDeviceOfflineThresholdReached, "", m.onOfflineThresholdReached)

	if m.cfg.EnableServerSpeaker {
		if output.HasPlaybackDevice() {
			m.createServerSpeaker()
		} else {
			m.logger.Warn("server speaker enabled but no playback device found, skipping")
		}
	}

	m.logger.Info("performing initial airplay scan")
	if err := m.scanner.ScanOnce(ctx); err != nil {
		m.logger.Warn("initial scan failed", slog.Any("error", err))
	}
	m.scanner.Start(ctx)

	m.mu.Lock()
	n := len(m.devices)
	m.mu.Unlock()
	m.logger.Info("device manager started", slog.Int("device_count", n))
}

// Stop halts the scanner and shuts down every device.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	devices := make([]*VirtualDevice, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, d)
	}
	m.mu.Unlock()

	m.scanner.Stop()
	m.bus.Unsubscribe(m.offlineSub)
	for _, d := range devices {
		d.Shutdown()
	}
	m.logger.Info("device manager stopped")
}

func (m *Manager) createServerSpeaker() {
	d := NewServerSpeakerDevice(m.bus, m.logger, m.cfg.ServerSpeakerName)
	d.Connected = true
	m.loadDeviceConfig(d)

	m.mu.Lock()
	m.devices[d.DeviceID] = d
	m.mu.Unlock()

	m.logger.Info("created virtual device", slog.String("name", d.Name), slog.String("device_id", d.DeviceID))
	d.Start()
	m.attachOutput(d)
	m.bus.Publish(eventbus.DeviceAdded(d.DeviceID, d.ToMap()))
}

func (m *Manager) onAirPlayFound(info DiscoveredDevice) {
	m.mu.Lock()
	if deviceID, ok := m.airplayMap[info.Identifier]; ok {
		device := m.devices[deviceID]
		m.mu.Unlock()
		if device == nil {
			return
		}
		device.mu.Lock()
		device.Address = info.Address
		device.Connected = true
		device.mu.Unlock()
		m.logger.Debug("updated airplay device", slog.String("name", device.Name))
		m.bus.Publish(eventbus.DeviceConnected(device.DeviceID))
		return
	}
	m.mu.Unlock()

	d := NewAirPlayDevice(m.bus, m.logger, info.Identifier, info.Name, info.Address, info.Model)
	d.Connected = true
	m.loadDeviceConfig(d)

	m.mu.Lock()
	m.devices[d.DeviceID] = d
	m.airplayMap[info.Identifier] = d.DeviceID
	m.mu.Unlock()

	m.logger.Info("created virtual device",
		slog.String("name", d.Name), slog.String("airplay_name", info.Name), slog.String("device_id", d.DeviceID))
	d.Start()
	m.attachOutput(d)
	m.bus.Publish(eventbus.DeviceAdded(d.DeviceID, d.ToMap()))
}

func (m *Manager) onAirPlayLost(identifier string) {
	m.mu.Lock()
	deviceID, ok := m.airplayMap[identifier]
	if !ok {
		m.mu.Unlock()
		return
	}
	device := m.devices[deviceID]
	m.mu.Unlock()
	if device == nil {
		return
	}

	device.mu.Lock()
	device.Connected = false
	device.mu.Unlock()

	m.logger.Info("airplay device disconnected", slog.String("name", device.Name))
	m.bus.Publish(eventbus.DeviceDisconnected(deviceID))
}

func (m *Manager) onOfflineThresholdReached(e eventbus.Event) error {
	scanID, _ := e.Data["scan_id"].(string)
	if scanID == "" {
		return nil
	}

	m.mu.Lock()
	deviceID, ok := m.airplayMap[scanID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	device := m.devices[deviceID]
	if device == nil {
		delete(m.airplayMap, scanID)
		m.mu.Unlock()
		return nil
	}
	delete(m.airplayMap, scanID)
	delete(m.devices, deviceID)
	m.mu.Unlock()

	m.logger.Info("removing device due to prolonged offline", slog.String("name", device.Name), slog.String("device_id", deviceID))

	device.mu.Lock()
	playing := device.Playback.State != eventbus.StateStopped
	device.mu.Unlock()
	if playing {
		m.bus.Publish(eventbus.CmdStop(deviceID))
	}
	device.Shutdown()
	m.bus.Publish(eventbus.DeviceRemoved(deviceID))
	return nil
}

func (m *Manager) attachOutput(d *VirtualDevice) {
	m.mu.Lock()
	factory := m.factory
	m.mu.Unlock()
	if factory == nil {
		return
	}
	out, graph, err := factory(d)
	if err != nil {
		m.logger.Warn("output factory failed", slog.Any("error", err), slog.String("device_id", d.DeviceID))
		return
	}
	d.SetOutput(out)
	if graph != nil {
		graph.SetConfig(d.DSPConfig)
		d.SetDSPGraph(graph)
	}
}

func (m *Manager) loadDeviceConfig(d *VirtualDevice) {
	if m.store == nil {
		return
	}
	dc := m.store.GetDeviceConfig(d.DeviceID)
	d.DSPEnabled = dc.DSPEnabled
	if len(dc.DSPConfig) > 0 {
		d.DSPConfig = d.DSPConfig.Merge(dc.DSPConfig)
	}
}

// GetDevice returns a device by device-id.
func (m *Manager) GetDevice(deviceID string) *VirtualDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devices[deviceID]
}

// GetDeviceByUUID returns a device by its DLNA UUID, as the SOAP router
// resolves `{id}` URL segments.
func (m *Manager) GetDeviceByUUID(dlnaUUID string) *VirtualDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.DLNAUUID == dlnaUUID {
			return d
		}
	}
	return nil
}

// GetDeviceByAirPlayID returns a device by its AirPlay scan-identifier.
func (m *Manager) GetDeviceByAirPlayID(airplayID string) *VirtualDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	deviceID, ok := m.airplayMap[airplayID]
	if !ok {
		return nil
	}
	return m.devices[deviceID]
}

// AllDevices returns every currently registered device.
func (m *Manager) AllDevices() []*VirtualDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*VirtualDevice, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	return out
}

// ConnectedDevices returns every device currently marked connected.
func (m *Manager) ConnectedDevices() []*VirtualDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*VirtualDevice
	for _, d := range m.devices {
		d.mu.Lock()
		connected := d.Connected
		d.mu.Unlock()
		if connected {
			out = append(out, d)
		}
	}
	return out
}

// IsRunning reports whether the manager has been started.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
