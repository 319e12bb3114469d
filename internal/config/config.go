package config

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/gofrs/uuid/v5"

	"airbridge/internal/device"
)

type HttpTimeoutsConfig struct {
	Shutdown time.Duration // how long we give the shutdown process to gracefully terminate
}

type DLNAConfig struct {
	HostIP       string // empty = auto-detect outbound IP at startup
	HTTPPort     int
	FriendlyName string
	UUID         string
	RateLimitRPS int
	RateBurst    int
}

type ShutdownTimersConfig struct {
	InactiveLimit time.Duration
	SleepTimer    time.Duration
	TimeToEnd     time.Time
}

type AudioConfig struct {
	CacheDir   string
	BufferSize int
	SampleRate int
	Channels   int
}

type DeviceConfig struct {
	EnableServerSpeaker bool
	ServerSpeakerName   string
	ScanInterval        int // seconds
	ScanTimeout         int // seconds
	OfflineThreshold    int
	Exclude             []device.ExcludeRule
}

type LogConfig struct {
	Level slog.Level
}

type Config struct {
	DLNA           DLNAConfig
	Device         DeviceConfig
	Audio          AudioConfig
	ShutdownTimers ShutdownTimersConfig
	HTTPTimeouts   HttpTimeoutsConfig
	Logger         LogConfig
}

// excludeFlag implements flag.Value, accumulating AirPlay-scanner exclude
// rules given as repeated -device.exclude flags in "ip:192.168.1.50" or
// "name:TV" form.
type excludeFlag []device.ExcludeRule

func (e *excludeFlag) String() string {
	return "Exclude rule: ip:<address> or name:<substring>"
}

func (e *excludeFlag) Set(value string) error {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid format, expected 'ip:<address>' or 'name:<substring>'")
	}

	kind := strings.ToLower(strings.TrimSpace(parts[0]))
	val := strings.TrimSpace(parts[1])
	if val == "" {
		return fmt.Errorf("exclude rule value cannot be empty")
	}

	switch kind {
	case "ip":
		*e = append(*e, device.ExcludeRule{IP: val})
	case "name":
		*e = append(*e, device.ExcludeRule{Name: val})
	default:
		return fmt.Errorf("invalid exclude kind %q: must be 'ip' or 'name'", kind)
	}
	return nil
}

const (
	defaultBufferSize = 1 * 1024 * 1024
	defaultSampleRate = 44100
	defaultChannels   = 2
	defaultHTTPPort   = 7000
)

func DefaultConfig() *Config {
	return &Config{
		DLNA: DLNAConfig{
			HTTPPort:     defaultHTTPPort,
			FriendlyName: "AirBridge",
			UUID:         "",
			RateLimitRPS: 20,
			RateBurst:    40,
		},
		Device: DeviceConfig{
			EnableServerSpeaker: false,
			ServerSpeakerName:   "This Computer",
			ScanInterval:        int(device.DefaultScanInterval / time.Second),
			ScanTimeout:         int(device.DefaultScanTimeout / time.Second),
			OfflineThreshold:    device.DefaultOfflineThreshold,
			Exclude:             []device.ExcludeRule{},
		},
		Audio: AudioConfig{
			CacheDir:   filepath.Join(os.TempDir(), "airbridge"),
			BufferSize: defaultBufferSize,
			SampleRate: defaultSampleRate,
			Channels:   defaultChannels,
		},
		ShutdownTimers: ShutdownTimersConfig{
			InactiveLimit: 0,
			SleepTimer:    0,
			TimeToEnd:     time.Time{},
		},
		HTTPTimeouts: HttpTimeoutsConfig{
			Shutdown: 15 * time.Second,
		},
		Logger: LogConfig{
			Level: slog.LevelInfo,
		},
	}
}

func ParseArgs(cfg *Config, args []string, stderr io.Writer) error {
	defaultCfg := DefaultConfig()

	fs := flag.NewFlagSet("airbridge", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: %s [options]\n\n", fs.Name())
		fmt.Fprintln(fs.Output(), "A LAN bridge exposing AirPlay speakers as DLNA MediaRenderer devices.")
		fmt.Fprintln(fs.Output(), "\nOptions:")
		fs.PrintDefaults()
	}

	fs.StringVar(&cfg.DLNA.HostIP, "dlna.hostIP", defaultCfg.DLNA.HostIP, "LAN IP to advertise (default: auto-detect outbound IP)")
	fs.IntVar(&cfg.DLNA.HTTPPort, "dlna.port", defaultCfg.DLNA.HTTPPort, "HTTP port for SSDP/SOAP/GENA")
	fs.StringVar(&cfg.DLNA.UUID, "dlna.uuid", defaultCfg.DLNA.UUID, "Server UUID (unique identifier). Generated randomly on startup if empty.")
	fs.IntVar(&cfg.DLNA.RateLimitRPS, "dlna.rateLimit", defaultCfg.DLNA.RateLimitRPS, "Per-IP requests/sec limit, 0 disables")
	fs.IntVar(&cfg.DLNA.RateBurst, "dlna.rateBurst", defaultCfg.DLNA.RateBurst, "Per-IP burst size")

	var friendlyNameStr string
	fs.StringVar(&friendlyNameStr, "dlna.friendlyName", defaultCfg.DLNA.FriendlyName, "DLNA friendly name prefix (max 64 chars)")

	fs.BoolVar(&cfg.Device.EnableServerSpeaker, "device.serverSpeaker", defaultCfg.Device.EnableServerSpeaker, "Expose the host sound card as an additional MediaRenderer device")
	fs.StringVar(&cfg.Device.ServerSpeakerName, "device.serverSpeakerName", defaultCfg.Device.ServerSpeakerName, "Friendly name for the host-speaker device")
	fs.IntVar(&cfg.Device.ScanInterval, "device.scanInterval", defaultCfg.Device.ScanInterval, "AirPlay scan interval in seconds")
	fs.IntVar(&cfg.Device.ScanTimeout, "device.scanTimeout", defaultCfg.Device.ScanTimeout, "AirPlay scan timeout in seconds")
	fs.IntVar(&cfg.Device.OfflineThreshold, "device.offlineThreshold", defaultCfg.Device.OfflineThreshold, "Consecutive missed scans before a device is marked removed")

	var exclude excludeFlag
	fs.Var(&exclude, "device.exclude", "Exclude a discovered device: ip:<address> or name:<substring> (repeatable)")

	fs.StringVar(&cfg.Audio.CacheDir, "audio.cacheDir", defaultCfg.Audio.CacheDir, "Directory for transcoded audio cache files (default: OS temp dir)")

	var bufferSizeStr string
	fs.StringVar(&bufferSizeStr, "audio.bufferSize", "1MB", "Decoder read buffer size (e.g. 1MB, 512KB)")

	fs.IntVar(&cfg.Audio.SampleRate, "audio.sampleRate", defaultCfg.Audio.SampleRate, "PCM sample rate fed to every output")
	fs.IntVar(&cfg.Audio.Channels, "audio.channels", defaultCfg.Audio.Channels, "PCM channel count fed to every output")

	var logLevelStr string
	fs.StringVar(&logLevelStr, "logger.level", "info", "Log level (debug, info, warn, error)")

	fs.DurationVar(&cfg.ShutdownTimers.InactiveLimit, "shutdown.inactive", defaultCfg.ShutdownTimers.InactiveLimit, "Shutdown after duration of HTTP inactivity, 0 disables (e.g. 30m)")
	fs.DurationVar(&cfg.ShutdownTimers.SleepTimer, "shutdown.sleep", defaultCfg.ShutdownTimers.SleepTimer, "Shutdown after a specific duration, 0 disables (e.g. 2h)")

	var timeToEndStr string
	fs.StringVar(&timeToEndStr, "shutdown.at", "", "Shutdown at a specific time (format HH:MM, e.g. 23:30)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	bufferSize, err := validateBufferSize(bufferSizeStr)
	if err != nil {
		return err
	}
	cfg.Audio.BufferSize = bufferSize

	level, err := validateLoggerLevel(logLevelStr)
	if err != nil {
		return err
	}
	cfg.Logger.Level = level

	friendlyName, err := validateFriendlyName(friendlyNameStr)
	if err != nil {
		return err
	}
	cfg.DLNA.FriendlyName = friendlyName

	dlnaUUID, err := validateUUID(cfg.DLNA.UUID)
	if err != nil {
		return err
	}
	cfg.DLNA.UUID = dlnaUUID

	timeToEnd, err := validateTimeToEnd(timeToEndStr)
	if err != nil {
		return err
	}
	cfg.ShutdownTimers.TimeToEnd = timeToEnd

	if len(exclude) > 0 {
		cfg.Device.Exclude = exclude
	}

	return nil
}

func validateBufferSize(bufStr string) (int, error) {
	bufSize64, err := parseBytes(bufStr)
	if err != nil {
		return 0, err
	}

	const maxInt = int(^uint(0) >> 1)
	if bufSize64 > int64(maxInt) {
		return 0, fmt.Errorf("buffer size too large for this system architecture")
	}
	if bufSize64 < 0 {
		return 0, fmt.Errorf("buffer size cannot be negative")
	}
	return int(bufSize64), nil
}

func validateFriendlyName(fNameStr string) (string, error) {
	fNameStr = strings.TrimSpace(fNameStr)

	if fNameStr == "" {
		return "", fmt.Errorf("friendly name cannot be empty")
	}
	if len(fNameStr) > 64 {
		return "", fmt.Errorf("friendly name too long (max 64 chars, got %d)", len(fNameStr))
	}
	return fNameStr, nil
}

func parseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.ToUpper(s)

	i := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})

	if i == -1 {
		return strconv.ParseInt(s, 10, 64)
	}

	numericStr := s[:i]
	unitStr := strings.TrimSpace(s[i:])

	val, err := strconv.ParseFloat(numericStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in byte string: %w", err)
	}

	var multiplier float64
	switch unitStr {
	case "B":
		multiplier = 1
	case "KB":
		multiplier = 1024
	case "MB":
		multiplier = 1024 * 1024
	case "GB":
		multiplier = 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unknown unit %q (expected B, KB, MB, GB)", unitStr)
	}

	return int64(val * multiplier), nil
}

func validateLoggerLevel(logLevelStr string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevelStr)); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", logLevelStr, err)
	}
	return level, nil
}

func validateUUID(uuidStr string) (string, error) {
	if uuidStr != "" {
		cleanUuid := strings.TrimPrefix(uuidStr, "uuid:")
		id, err := uuid.FromString(cleanUuid)
		if err != nil {
			return "", fmt.Errorf("failed to parse UUID %q: %v", uuidStr, err)
		}
		return "uuid:" + id.String(), nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID: %w", err)
	}
	return "uuid:" + id.String(), nil
}

func validateTimeToEnd(timeToEndStr string) (time.Time, error) {
	if timeToEndStr == "" {
		return time.Time{}, nil
	}

	now := time.Now()
	parsed, err := time.Parse("15:04", timeToEndStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time format %q (expected HH:MM): %w", timeToEndStr, err)
	}

	result := time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
	if result.Before(now) {
		result = result.Add(24 * time.Hour)
	}

	return result, nil
}
