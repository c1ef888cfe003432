package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lcalzada-xor/geotrack/internal/core/domain"
)

// Provider modes.
const (
	ModeObserver = string(domain.ModeObserver)
	ModePoll     = string(domain.ModePoll)
)

// Config holds all application configuration.
type Config struct {
	Mode   string
	Addr   string
	DBPath string
	Debug  bool
	Trace  bool

	// RequireBoth is "" for the mode default, otherwise "true" or "false".
	RequireBoth string

	// Observer-mode request. Poll mode always uses domain.PollRequest.
	Interval        time.Duration
	FastestInterval time.Duration
	MaxWait         time.Duration
	MinDisplacement float64

	StreamBuffer    int
	ControlRate     int // start/stop calls per client per minute, 0 disables
	PollLogInterval time.Duration
	AllowedOrigins  []string

	// Simulated platform
	Coarse         bool
	Fine           bool
	NetworkEnabled bool
	GPSEnabled     bool
	Latitude       float64
	Longitude      float64
	Bearing        float64
	Speed          float64
}

// Load parses command line flags and environment variables to populate Config.
// Flags take precedence over environment variables.
func Load() (*Config, error) {
	return LoadFrom(flag.CommandLine, os.Args[1:])
}

// LoadFrom is Load against an explicit flag set and argument list.
func LoadFrom(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	// Defaults and Environment Variables
	cfg.Mode = getEnv("GEOTRACK_MODE", ModeObserver)
	cfg.Addr = getEnv("GEOTRACK_ADDR", ":8080")
	cfg.DBPath = getEnv("GEOTRACK_DB", "")
	cfg.Debug = getEnvBool("GEOTRACK_DEBUG", false)
	cfg.Trace = getEnvBool("GEOTRACK_TRACE", false)
	cfg.RequireBoth = getEnv("GEOTRACK_REQUIRE_BOTH", "")

	def := domain.ObserverRequest()
	cfg.Interval = getEnvDuration("GEOTRACK_INTERVAL", def.Interval)
	cfg.FastestInterval = getEnvDuration("GEOTRACK_FASTEST_INTERVAL", def.FastestInterval)
	cfg.MaxWait = getEnvDuration("GEOTRACK_MAX_WAIT", def.MaxWait)
	cfg.MinDisplacement = getEnvFloat("GEOTRACK_MIN_DISPLACEMENT", def.MinDisplacement)

	cfg.StreamBuffer = int(getEnvFloat("GEOTRACK_STREAM_BUFFER", 32))
	cfg.ControlRate = int(getEnvFloat("GEOTRACK_CONTROL_RATE", 30))
	cfg.PollLogInterval = getEnvDuration("GEOTRACK_POLL_LOG_INTERVAL", time.Minute)
	origins := getEnv("GEOTRACK_ALLOWED_ORIGINS", "")

	cfg.Coarse = getEnvBool("GEOTRACK_GRANT_COARSE", true)
	cfg.Fine = getEnvBool("GEOTRACK_GRANT_FINE", true)
	cfg.NetworkEnabled = getEnvBool("GEOTRACK_NETWORK", true)
	cfg.GPSEnabled = getEnvBool("GEOTRACK_GPS", true)
	cfg.Latitude = getEnvFloat("GEOTRACK_LAT", 30.0444)
	cfg.Longitude = getEnvFloat("GEOTRACK_LNG", 31.2357)
	cfg.Bearing = getEnvFloat("GEOTRACK_BEARING", 45)
	cfg.Speed = getEnvFloat("GEOTRACK_SPEED", 1.4)

	// Command Line Flags (Override Env)
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Provider mode: observer or poll")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address (empty to disable)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite audit database (default ~/.geotrack/geotrack.db)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable verbose debug logging")
	fs.BoolVar(&cfg.Trace, "trace", cfg.Trace, "Export OpenTelemetry spans to stdout")
	fs.StringVar(&cfg.RequireBoth, "require-both", cfg.RequireBoth, "Require both coarse and fine permissions (true/false, empty for mode default)")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Observer mode update interval")
	fs.DurationVar(&cfg.FastestInterval, "fastest-interval", cfg.FastestInterval, "Observer mode fastest update interval")
	fs.DurationVar(&cfg.MaxWait, "max-wait", cfg.MaxWait, "Observer mode maximum batching delay")
	fs.Float64Var(&cfg.MinDisplacement, "min-displacement", cfg.MinDisplacement, "Observer mode minimum displacement in meters")
	fs.IntVar(&cfg.StreamBuffer, "stream-buffer", cfg.StreamBuffer, "Buffered samples per update stream")
	fs.IntVar(&cfg.ControlRate, "control-rate", cfg.ControlRate, "Start/stop requests per client per minute (0 disables)")
	fs.DurationVar(&cfg.PollLogInterval, "poll-log-interval", cfg.PollLogInterval, "Poll mode interval between cache reads")
	fs.StringVar(&origins, "origins", origins, "Allowed WebSocket origins (comma separated)")
	fs.BoolVar(&cfg.Coarse, "grant-coarse", cfg.Coarse, "Simulated coarse location grant")
	fs.BoolVar(&cfg.Fine, "grant-fine", cfg.Fine, "Simulated fine location grant")
	fs.BoolVar(&cfg.NetworkEnabled, "network", cfg.NetworkEnabled, "Simulated network provider enabled")
	fs.BoolVar(&cfg.GPSEnabled, "gps", cfg.GPSEnabled, "Simulated GPS provider enabled")
	fs.Float64Var(&cfg.Latitude, "lat", cfg.Latitude, "Simulated start latitude")
	fs.Float64Var(&cfg.Longitude, "lng", cfg.Longitude, "Simulated start longitude")
	fs.Float64Var(&cfg.Bearing, "bearing", cfg.Bearing, "Simulated heading in degrees")
	fs.Float64Var(&cfg.Speed, "speed", cfg.Speed, "Simulated speed in m/s (0 for a fixed position)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.AllowedOrigins = parseList(origins)
	if cfg.DBPath == "" {
		cfg.DBPath = getDefaultDBPath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the mode, the permission flag, the counters and the
// observer request.
func (c *Config) Validate() error {
	if c.Mode != ModeObserver && c.Mode != ModePoll {
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.StreamBuffer < 0 {
		return fmt.Errorf("config: stream-buffer must not be negative, got %d", c.StreamBuffer)
	}
	if c.ControlRate < 0 {
		return fmt.Errorf("config: control-rate must not be negative, got %d", c.ControlRate)
	}
	if c.RequireBoth != "" {
		if _, err := strconv.ParseBool(c.RequireBoth); err != nil {
			return fmt.Errorf("config: require-both must be true or false, got %q", c.RequireBoth)
		}
	}
	if c.Mode == ModeObserver {
		if err := c.Request().Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// Policy resolves the permission policy for the configured mode.
func (c *Config) Policy() domain.PermissionPolicy {
	if b, err := strconv.ParseBool(c.RequireBoth); err == nil {
		return domain.PolicyFor(b)
	}
	if c.Mode == ModePoll {
		return domain.RequireBoth
	}
	return domain.RequireAny
}

// Request builds the observer-mode request.
func (c *Config) Request() domain.Request {
	return domain.Request{
		Priority:        domain.PriorityHighAccuracy,
		Interval:        c.Interval,
		FastestInterval: c.FastestInterval,
		MaxWait:         c.MaxWait,
		MinDisplacement: c.MinDisplacement,
	}
}

func parseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getDefaultDBPath returns the default database path in user's home directory.
// Creates the directory if it doesn't exist.
func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("could not get user home directory, using current dir", "error", err)
		return "geotrack.db"
	}

	dir := filepath.Join(home, ".geotrack")
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Warn("could not create .geotrack directory, using current dir", "error", err)
		return "geotrack.db"
	}

	return filepath.Join(dir, "geotrack.db")
}
