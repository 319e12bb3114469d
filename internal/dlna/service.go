package dlna

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"airbridge/internal/device"
	"airbridge/internal/eventbus"
	"airbridge/internal/middleware"
)

// Config configures the DLNA MediaRenderer surface.
type Config struct {
	HostIP       string
	HTTPPort     int
	FriendlyName string // suffixed with each device's own name at description time
	RateLimitRPS int
	RateBurst    int
}

const (
	serverField       = "Linux/3.10.0 UPnP/1.0 DLNADOC/1.50 AirBridge/1.0"
	httpShutdownGrace = 5 * time.Second
)

// Service is the DLNA front for every device.VirtualDevice the
// device.Manager owns: one shared HTTP port speaks SSDP discovery, device
// & SCPD descriptions, AVTransport/RenderingControl/ConnectionManager
// SOAP, and GENA eventing for each of them, addressed by
// /device/{id}/... routes.
type Service struct {
	cfg     Config
	manager *device.Manager
	bus     *eventbus.Bus
	logger  *slog.Logger

	subs      *subscriptionTable
	staging   *stagingTable
	templates *templateSet

	mux *http.ServeMux
	srv *http.Server

	mu     sync.Mutex
	cancel context.CancelFunc
	stateSub eventbus.Subscription
	volSub   eventbus.Subscription
	dspSub   eventbus.Subscription
}

// NewService builds the Service and its HTTP router. The HTTP server is
// not started until Start.
func NewService(cfg Config, manager *device.Manager, bus *eventbus.Bus, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8200
	}
	if cfg.FriendlyName == "" {
		cfg.FriendlyName = "AirBridge"
	}

	tmpls, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("load dlna templates: %w", err)
	}

	s := &Service{
		cfg:       cfg,
		manager:   manager,
		bus:       bus,
		logger:    logger.With(slog.String("component", "dlna")),
		subs:      newSubscriptionTable(logger.With(slog.String("component", "dlna_gena"))),
		staging:   newStagingTable(),
		templates: tmpls,
	}
	s.mux = s.buildRouter()
	return s, nil
}

// Start launches the HTTP listener, the SSDP broadcaster/responder, and
// the GENA NOTIFY fan-out subscription to state/volume/DSP change events.
// It does not block.
func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	addr := fmt.Sprintf(":%d", s.cfg.HTTPPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		cancel()
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	handler := middleware.Chain(s.mux,
		middleware.WithLogging(s.logger, nil),
		middleware.WithObservability(),
	)
	if s.cfg.RateLimitRPS > 0 {
		limiter := middleware.NewIPRateLimiter(runCtx, s.cfg.RateLimitRPS, s.cfg.RateBurst, false)
		handler = limiter.Middleware(handler)
	}

	s.srv = &http.Server{Handler: handler}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("dlna http server stopped", slog.Any("error", err))
		}
	}()

	s.startSSDP(runCtx)
	s.subscribeEventFanOut()

	s.logger.Info("dlna service started", slog.String("addr", addr))
	return nil
}

// Stop shuts down the HTTP listener, the SSDP loops, and unsubscribes the
// fan-out handlers.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if s.srv != nil {
		ctx, done := context.WithTimeout(context.Background(), httpShutdownGrace)
		defer done()
		_ = s.srv.Shutdown(ctx)
	}

	s.bus.Unsubscribe(s.stateSub)
	s.bus.Unsubscribe(s.volSub)
	s.bus.Unsubscribe(s.dspSub)

	s.logger.Info("dlna service stopped")
}

func (s *Service) locationURL(deviceID string) string {
	return fmt.Sprintf("http://%s:%d/device/%s/device.xml", s.cfg.HostIP, s.cfg.HTTPPort, deviceID)
}
