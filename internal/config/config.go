// YAML config loader with CUE validation and environment overrides
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"counterdrone-sim/internal/broadcast"
	"counterdrone-sim/internal/geo"
	"counterdrone-sim/internal/logging"
	"counterdrone-sim/internal/sim"
)

// Border is the monitored rectangle, in degrees.
type Border struct {
	CenterLat float64 `yaml:"center_lat"`
	CenterLon float64 `yaml:"center_lon"`
	Width     float64 `yaml:"width"`
	Height    float64 `yaml:"height"`
	Rotation  float64 `yaml:"rotation"`
}

// Simulation holds the engine knobs. UpdateInterval is in seconds.
type Simulation struct {
	DroneCount         int     `yaml:"drone_count"`
	MaxDrones          int     `yaml:"max_drones"`
	UpdateInterval     float64 `yaml:"update_interval"`
	SpawnProbability   float64 `yaml:"spawn_probability"`
	JitterProbability  float64 `yaml:"jitter_probability"`
	EdgeBias           float64 `yaml:"edge_bias"`
	RestrictedFraction float64 `yaml:"restricted_fraction"`
	BoundaryPolicy     string  `yaml:"boundary_policy"`
	BoundaryMargin     float64 `yaml:"boundary_margin"`
	MaxAlerts          int     `yaml:"max_alerts"`
	JamDecay           float64 `yaml:"jam_decay"`
	// Seed fixes the random source; 0 picks one from the clock.
	Seed int64 `yaml:"seed"`
}

// Broadcast tunes observer delivery. SendTimeout is in seconds.
type Broadcast struct {
	QueueSize      int     `yaml:"queue_size"`
	SendTimeout    float64 `yaml:"send_timeout"`
	MaxMissedSends int     `yaml:"max_missed_sends"`
}

// Server configures the HTTP API.
type Server struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// FileOutput records the stream as JSON lines.
type FileOutput struct {
	Stream string `yaml:"stream"`
	Alerts string `yaml:"alerts"`
}

// GreptimeOutput writes tracks and alerts to GreptimeDB.
type GreptimeOutput struct {
	Endpoint string `yaml:"endpoint"`
	Database string `yaml:"database"`
}

// NATSOutput publishes messages on NATS subjects.
type NATSOutput struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// RedisOutput caches the latest state in Redis.
type RedisOutput struct {
	Addr string `yaml:"addr"`
}

// Outputs selects the observers attached to the broadcast loop. Empty
// addresses disable the matching sink.
type Outputs struct {
	Stdout   bool           `yaml:"stdout"`
	TUI      bool           `yaml:"tui"`
	File     FileOutput     `yaml:"file"`
	Greptime GreptimeOutput `yaml:"greptimedb"`
	NATS     NATSOutput     `yaml:"nats"`
	Redis    RedisOutput    `yaml:"redis"`
}

// Logging selects the slog handler.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root configuration.
type Config struct {
	Simulation Simulation `yaml:"simulation"`
	Border     Border     `yaml:"border"`
	Broadcast  Broadcast  `yaml:"broadcast"`
	Server     Server     `yaml:"server"`
	Outputs    Outputs    `yaml:"outputs"`
	Logging    Logging    `yaml:"logging"`
}

// Default returns the stock configuration: five drones around Mae Sot,
// updated once per second, API on :8000.
func Default() *Config {
	s := sim.DefaultSettings()
	opts := broadcast.DefaultOptions()
	return &Config{
		Simulation: Simulation{
			DroneCount:         s.DroneCount,
			MaxDrones:          s.MaxDrones,
			UpdateInterval:     s.TickInterval.Seconds(),
			SpawnProbability:   s.SpawnProbability,
			JitterProbability:  s.JitterProbability,
			EdgeBias:           s.EdgeBias,
			RestrictedFraction: s.RestrictedFraction,
			BoundaryPolicy:     string(s.Boundary),
			BoundaryMargin:     s.BoundaryMargin,
			MaxAlerts:          s.MaxAlerts,
			JamDecay:           s.JamDecay,
		},
		Border: Border{
			CenterLat: s.Region.Center.Latitude,
			CenterLon: s.Region.Center.Longitude,
			Width:     s.Region.Width,
			Height:    s.Region.Height,
			Rotation:  s.Region.Rotation,
		},
		Broadcast: Broadcast{
			QueueSize:      opts.QueueSize,
			SendTimeout:    opts.SendTimeout.Seconds(),
			MaxMissedSends: opts.MaxMissedSends,
		},
		Server:  Server{Enabled: true, ListenAddr: ":8000"},
		Outputs: Outputs{Stdout: true, Greptime: GreptimeOutput{Database: "public"}, NATS: NATSOutput{SubjectPrefix: "counterdrone"}},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Load reads configPath over the defaults, validating it against the CUE
// schema at cueSchemaPath first, then applies environment overrides. Either
// path may be empty to skip that step.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	cfg := Default()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if cueSchemaPath != "" {
			if err := ValidateWithCue(configPath, data, cueSchemaPath); err != nil {
				return nil, err
			}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. A variable that is
// set but malformed is an error.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"SIM_DEFAULT_DRONES", &c.Simulation.DroneCount},
	}
	for _, v := range ints {
		if raw, ok := lookup(v.key); ok {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", v.key, err)
			}
			*v.dst = n
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"SIM_UPDATE_INTERVAL", &c.Simulation.UpdateInterval},
		{"BORDER_CENTER_LAT", &c.Border.CenterLat},
		{"BORDER_CENTER_LON", &c.Border.CenterLon},
		{"BORDER_WIDTH", &c.Border.Width},
		{"BORDER_HEIGHT", &c.Border.Height},
		{"BORDER_ROTATION", &c.Border.Rotation},
	}
	for _, v := range floats {
		if raw, ok := lookup(v.key); ok {
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", v.key, err)
			}
			*v.dst = f
		}
	}

	// TICK_INTERVAL takes a Go duration and wins over SIM_UPDATE_INTERVAL.
	if raw, ok := lookup("TICK_INTERVAL"); ok {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("TICK_INTERVAL: %w", err)
		}
		c.Simulation.UpdateInterval = d.Seconds()
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"LISTEN_ADDR", &c.Server.ListenAddr},
		{"GREPTIMEDB_ENDPOINT", &c.Outputs.Greptime.Endpoint},
		{"GREPTIMEDB_DATABASE", &c.Outputs.Greptime.Database},
		{"NATS_URL", &c.Outputs.NATS.URL},
		{"REDIS_ADDR", &c.Outputs.Redis.Addr},
		{"LOG_LEVEL", &c.Logging.Level},
		{"LOG_FORMAT", &c.Logging.Format},
	}
	for _, v := range strs {
		if raw, ok := lookup(v.key); ok {
			*v.dst = raw
		}
	}
	return nil
}

// Validate checks the parts the engine does not own, then the engine settings.
func (c *Config) Validate() error {
	if c.Broadcast.QueueSize <= 0 {
		return &sim.ConfigError{Field: "broadcast.queue_size", Reason: "must be positive"}
	}
	if math.IsNaN(c.Broadcast.SendTimeout) || c.Broadcast.SendTimeout <= 0 {
		return &sim.ConfigError{Field: "broadcast.send_timeout", Reason: "must be positive"}
	}
	if c.Broadcast.MaxMissedSends <= 0 {
		return &sim.ConfigError{Field: "broadcast.max_missed_sends", Reason: "must be positive"}
	}
	if c.Server.Enabled && c.Server.ListenAddr == "" {
		return &sim.ConfigError{Field: "server.listen_addr", Reason: "must be set when the server is enabled"}
	}
	if (c.Outputs.File.Alerts != "") && c.Outputs.File.Stream == "" {
		return &sim.ConfigError{Field: "outputs.file.stream", Reason: "required when outputs.file.alerts is set"}
	}
	if c.Outputs.Stdout && c.Outputs.TUI {
		return &sim.ConfigError{Field: "outputs", Reason: "stdout and tui cannot both be enabled"}
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return &sim.ConfigError{Field: "logging.format", Reason: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return &sim.ConfigError{Field: "logging.level", Reason: err.Error()}
	}
	return c.EngineSettings().Validate()
}

// EngineSettings converts the simulation and border sections.
func (c *Config) EngineSettings() sim.Settings {
	s := c.Simulation
	return sim.Settings{
		Region: geo.Region{
			Center:   geo.Point{Latitude: c.Border.CenterLat, Longitude: c.Border.CenterLon},
			Width:    c.Border.Width,
			Height:   c.Border.Height,
			Rotation: c.Border.Rotation,
		},
		RestrictedFraction: s.RestrictedFraction,
		DroneCount:         s.DroneCount,
		MaxDrones:          s.MaxDrones,
		TickInterval:       seconds(s.UpdateInterval),
		SpawnProbability:   s.SpawnProbability,
		JitterProbability:  s.JitterProbability,
		EdgeBias:           s.EdgeBias,
		Boundary:           sim.BoundaryPolicy(s.BoundaryPolicy),
		BoundaryMargin:     s.BoundaryMargin,
		MaxAlerts:          s.MaxAlerts,
		JamDecay:           s.JamDecay,
	}
}

// BroadcastOptions converts the broadcast section.
func (c *Config) BroadcastOptions() broadcast.Options {
	return broadcast.Options{
		QueueSize:      c.Broadcast.QueueSize,
		SendTimeout:    seconds(c.Broadcast.SendTimeout),
		MaxMissedSends: c.Broadcast.MaxMissedSends,
	}
}

func seconds(v float64) time.Duration {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
