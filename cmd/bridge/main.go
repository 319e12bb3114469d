package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"airbridge/internal/config"
	"airbridge/internal/configstore"
	"airbridge/internal/device"
	"airbridge/internal/dlna"
	"airbridge/internal/dsp"
	"airbridge/internal/eventbus"
	"airbridge/internal/output"
)

type App struct {
	logger  *slog.Logger
	cfg     *config.Config
	bus     *eventbus.Bus
	store   *configstore.Store
	manager *device.Manager
	dlna    *dlna.Service
	monitor *shutdownMonitor
}

func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.Audio.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio cache dir: %w", err)
	}

	bus := eventbus.New(logger)

	storeDir := filepath.Join(os.TempDir(), "airbridge")
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config store dir: %w", err)
	}
	store := configstore.New(filepath.Join(storeDir, "devices.json"), bus, logger)

	managerCfg := device.ManagerConfig{
		EnableServerSpeaker: cfg.Device.EnableServerSpeaker,
		ServerSpeakerName:   cfg.Device.ServerSpeakerName,
		ScanInterval:        cfg.Device.ScanInterval,
		ScanTimeout:         cfg.Device.ScanTimeout,
		OfflineThreshold:    cfg.Device.OfflineThreshold,
		Exclude:             cfg.Device.Exclude,
	}
	manager := device.NewManager(managerCfg, bus, store, logger)
	manager.SetOutputFactory(newOutputFactory(cfg, bus, logger))

	dlnaCfg := dlna.Config{
		HostIP:       cfg.DLNA.HostIP,
		HTTPPort:     cfg.DLNA.HTTPPort,
		FriendlyName: cfg.DLNA.FriendlyName,
		RateLimitRPS: cfg.DLNA.RateLimitRPS,
		RateBurst:    cfg.DLNA.RateBurst,
	}
	dlnaSvc, err := dlna.NewService(dlnaCfg, manager, bus, logger)
	if err != nil {
		return nil, fmt.Errorf("build dlna service: %w", err)
	}

	monitor := NewShutdownMonitor(cfg.ShutdownTimers, logger)

	return &App{
		logger:  logger,
		cfg:     cfg,
		bus:     bus,
		store:   store,
		manager: manager,
		dlna:    dlnaSvc,
		monitor: monitor,
	}, nil
}

// newOutputFactory builds the device.OutputFactory bootstrap registers with
// the Manager: a LocalSpeaker for the host-speaker device, an AirPlaySender
// for every discovered AirPlay device. The AirPlaySender's AirPlayClient —
// the RTSP handshake/ALAC encoding library — is out of scope here, so
// AirPlay devices build a sender with no client attached; it answers every
// DLNA action but Play fails with output.ErrNoAirPlayClient until a real
// client implementation is plugged in.
func newOutputFactory(cfg *config.Config, bus *eventbus.Bus, logger *slog.Logger) device.OutputFactory {
	return func(d *device.VirtualDevice) (output.Output, *dsp.Graph, error) {
		graph := dsp.NewGraph(float64(cfg.Audio.SampleRate), cfg.Audio.Channels)

		switch d.Type {
		case device.TypeServerSpeaker:
			volCtl := output.NewDBusVolumeController()
			speaker := output.NewLocalSpeaker(output.LocalSpeakerConfig{
				CacheDir:   cfg.Audio.CacheDir,
				DeviceID:   d.DeviceID,
				SampleRate: cfg.Audio.SampleRate,
				Channels:   cfg.Audio.Channels,
			}, graph, volCtl, bus, logger)
			return speaker, graph, nil

		case device.TypeAirPlay:
			sender := output.NewAirPlaySender(output.AirPlaySenderConfig{
				CacheDir:       cfg.Audio.CacheDir,
				DeviceID:       d.DeviceID,
				ScanIdentifier: d.ScanIdentifier,
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
			}, nil, graph, logger)
			return sender, graph, nil

		default:
			return nil, nil, fmt.Errorf("no output variant for device type %q", d.Type)
		}
	}
}

func main() {
	stderr := os.Stderr

	cfg := config.DefaultConfig()
	if err := config.ParseArgs(cfg, os.Args[1:], stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Logger.Level})
	logger := slog.New(logHandler).With("app", "airbridge")

	app, err := NewApp(cfg, logger)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}

	if err := app.Run(context.Background()); err != nil {
		logger.Error("bridge stopped with error", "error", err)
		os.Exit(1)
	}
}

func (a *App) Run(rootCtx context.Context) error {
	if a.cfg.DLNA.HostIP == "" {
		hostIP, err := getLocalIP()
		if err != nil {
			return fmt.Errorf("determine local IP: %w", err)
		}
		a.cfg.DLNA.HostIP = hostIP
	}

	ctx, stop := signal.NotifyContext(rootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.monitor.Start(ctx)
	a.manager.Start(ctx)

	if err := a.dlna.Start(ctx); err != nil {
		return fmt.Errorf("start dlna service: %w", err)
	}

	a.logger.Info("airbridge started",
		"host_ip", a.cfg.DLNA.HostIP,
		"port", a.cfg.DLNA.HTTPPort,
		"friendly_name", a.cfg.DLNA.FriendlyName)

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down gracefully...")
	case err := <-a.monitor.StopCh:
		a.logger.Info("auto-shutdown triggered", "reason", err)
	}

	a.dlna.Stop()
	a.manager.Stop()

	a.logger.Info("airbridge stopped")
	return nil
}

func getLocalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("get local IP: %w", err)
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}
