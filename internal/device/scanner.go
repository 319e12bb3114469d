package device

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/brutella/dnssd"

	"airbridge/internal/observability"
)

// airplayServiceType is the mDNS/DNS-SD service type AirPlay speakers
// advertise.
const airplayServiceType = "_airplay._tcp"

const (
	DefaultScanInterval = 30 * time.Second
	DefaultScanTimeout  = 5 * time.Second
	DefaultOfflineThreshold = 3
)

// DiscoveredDevice is the scanner's found/refreshed callback payload.
type DiscoveredDevice struct {
	Identifier string // stable scan-identifier: DNS-SD instance name
	Name       string
	Address    string
	Model      string
}

// ExcludeRule filters discovered devices by IP or by a friendly-name
// substring, matching the bootstrap's -device.exclude flag.
type ExcludeRule struct {
	IP   string
	Name string
}

func (r ExcludeRule) matches(d DiscoveredDevice) bool {
	if r.IP != "" && r.IP == d.Address {
		return true
	}
	if r.Name != "" && strings.Contains(strings.ToLower(d.Name), strings.ToLower(r.Name)) {
		return true
	}
	return false
}

// browser abstracts dnssd's browse entrypoint so tests can substitute a
// fake without touching the network.
type browser interface {
	browseOnce(ctx context.Context, timeout time.Duration) ([]DiscoveredDevice, error)
}

type dnssdBrowser struct{}

func (dnssdBrowser) browseOnce(ctx context.Context, timeout time.Duration) ([]DiscoveredDevice, error) {
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	var found []DiscoveredDevice

	add := func(e dnssd.BrowseEntry) {
		mu.Lock()
		defer mu.Unlock()
		found = append(found, entryToDevice(e))
	}
	remove := func(dnssd.BrowseEntry) {}

	err := dnssd.LookupType(scanCtx, airplayServiceType, add, remove)
	if err != nil && scanCtx.Err() == nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return found, nil
}

func entryToDevice(e dnssd.BrowseEntry) DiscoveredDevice {
	model := "Unknown"
	if m, ok := e.Text["model"]; ok && m != "" {
		model = m
	}
	address := ""
	if len(e.IPs) > 0 {
		address = e.IPs[0].String()
	}
	return DiscoveredDevice{
		Identifier: e.Name,
		Name:       e.Name,
		Address:    address,
		Model:      model,
	}
}

// Scanner periodically browses the LAN for AirPlay speakers, matching
// original_source/device/airplay_scanner.py, with one redesign: lost
// devices are reported only after OfflineThreshold consecutive scans in
// which a previously-known identifier fails to appear (the original
// reports loss on the very next miss).
type Scanner struct {
	browser         browser
	interval        time.Duration
	timeout         time.Duration
	offlineThreshold int
	exclude         []ExcludeRule
	logger          *slog.Logger

	onFound func(DiscoveredDevice)
	onLost  func(identifier string)

	mu      sync.Mutex
	known   map[string]DiscoveredDevice
	misses  map[string]int
	running bool
	cancel  context.CancelFunc
}

// NewScanner builds a Scanner. interval/timeout/offlineThreshold of zero
// fall back to the package defaults.
func NewScanner(interval, timeout time.Duration, offlineThreshold int, exclude []ExcludeRule, logger *slog.Logger) *Scanner {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	if offlineThreshold <= 0 {
		offlineThreshold = DefaultOfflineThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		browser:          dnssdBrowser{},
		interval:         interval,
		timeout:          timeout,
		offlineThreshold: offlineThreshold,
		exclude:          exclude,
		logger:           logger.With(slog.String("component", "airplay_scanner")),
		known:            make(map[string]DiscoveredDevice),
		misses:           make(map[string]int),
	}
}

// OnDeviceFound registers the callback invoked for every newly-seen
// scan-identifier (and, for already-known ones, whenever its address
// changes is NOT re-notified — only first sight and post-threshold loss
// fire callbacks, matching the original's semantics).
func (s *Scanner) OnDeviceFound(fn func(DiscoveredDevice)) { s.onFound = fn }

// OnDeviceLost registers the callback invoked once a known identifier has
// been absent for OfflineThreshold consecutive scans.
func (s *Scanner) OnDeviceLost(fn func(identifier string)) { s.onLost = fn }

// ScanOnce performs a single browse round and applies the
// found/refreshed/lost bookkeeping, invoking callbacks as needed. It is
// exported so the Device Manager's tests and a manual "scan now" control
// surface can drive it directly.
func (s *Scanner) ScanOnce(ctx context.Context) error {
	discovered, err := s.browser.browseOnce(ctx, s.timeout)
	if err != nil {
		s.logger.Warn("scan failed", slog.Any("error", err))
		return err
	}

	filtered := discovered[:0]
	for _, d := range discovered {
		if s.isExcluded(d) {
			continue
		}
		filtered = append(filtered, d)
	}

	s.mu.Lock()
	seen := make(map[string]bool, len(filtered))
	for _, d := range filtered {
		seen[d.Identifier] = true
		s.misses[d.Identifier] = 0
		_, known := s.known[d.Identifier]
		s.known[d.Identifier] = d
		if !known {
			fn := s.onFound
			s.mu.Unlock()
			observability.ScannerDevicesFoundTotal.Inc()
			if fn != nil {
				fn(d)
			}
			s.mu.Lock()
		}
	}

	var lost []string
	for id := range s.known {
		if seen[id] {
			continue
		}
		s.misses[id]++
		if s.misses[id] >= s.offlineThreshold {
			lost = append(lost, id)
			delete(s.known, id)
			delete(s.misses, id)
		}
	}
	s.mu.Unlock()

	for _, id := range lost {
		observability.ScannerDevicesLostTotal.Inc()
		if s.onLost != nil {
			s.onLost(id)
		}
	}
	return nil
}

func (s *Scanner) isExcluded(d DiscoveredDevice) bool {
	for _, rule := range s.exclude {
		if rule.matches(d) {
			return true
		}
	}
	return false
}

// Start launches the periodic scan loop in a goroutine. Calling Start
// while already running is a no-op.
func (s *Scanner) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.logger.Info("scanner started", slog.Duration("interval", s.interval))
	go s.loop(loopCtx)
}

func (s *Scanner) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	_ = s.ScanOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.ScanOnce(ctx)
		}
	}
}

// Stop halts the periodic scan loop.
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
}

// IsRunning reports whether the periodic loop is active.
func (s *Scanner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Devices returns the currently-known device snapshot.
func (s *Scanner) Devices() []DiscoveredDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DiscoveredDevice, 0, len(s.known))
	for _, d := range s.known {
		out = append(out, d)
	}
	return out
}
