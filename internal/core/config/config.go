package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crossflow/crossflow/internal/core/fleet"
	"github.com/crossflow/crossflow/internal/core/geometry"
	"github.com/crossflow/crossflow/internal/core/observability/log"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the full runtime configuration. Zero values are filled from
// Default, so partial files only need to state overrides.
type Config struct {
	Canvas  CanvasConfig  `json:"canvas" yaml:"canvas"`
	Traffic TrafficConfig `json:"traffic" yaml:"traffic"`
	Lights  LightsConfig  `json:"lights" yaml:"lights"`
	Feed    FeedConfig    `json:"feed" yaml:"feed"`

	LogLevel string `json:"log_level" yaml:"log_level"`
}

// CanvasConfig fixes the intersection layout, in simulation units.
type CanvasConfig struct {
	Width     float64 `json:"width" yaml:"width"`
	Height    float64 `json:"height" yaml:"height"`
	RoadWidth float64 `json:"road_width" yaml:"road_width"`
	LaneWidth float64 `json:"lane_width" yaml:"lane_width"`
}

// TrafficConfig holds the simulation knobs.
type TrafficConfig struct {
	// MaxSpeed is the cruising cap in units per second.
	MaxSpeed float64 `json:"max_speed" yaml:"max_speed"`
	// SpawnRate controls the spawn cadence; 0 disables automatic spawns.
	SpawnRate float64 `json:"spawn_rate" yaml:"spawn_rate"`
	// Seed drives all spawn randomness; equal seeds give equal runs.
	Seed int64 `json:"seed" yaml:"seed"`
	// TickMillis is the fixed simulation step.
	TickMillis int `json:"tick_millis" yaml:"tick_millis"`
}

// LightsConfig times the fixed signal cycle.
type LightsConfig struct {
	GreenMillis  int `json:"green_millis" yaml:"green_millis"`
	YellowMillis int `json:"yellow_millis" yaml:"yellow_millis"`
}

// FeedConfig addresses the snapshot feeds.
type FeedConfig struct {
	WebSocketAddr string `json:"websocket_addr" yaml:"websocket_addr"`
	QUICAddr      string `json:"quic_addr" yaml:"quic_addr"`
	// SnapshotHz is how often full state frames go out to clients.
	SnapshotHz int `json:"snapshot_hz" yaml:"snapshot_hz"`
}

// Default returns the standard 800x600 single-intersection setup.
func Default() Config {
	return Config{
		Canvas: CanvasConfig{
			Width:     geometry.DefaultCanvasW,
			Height:    geometry.DefaultCanvasH,
			RoadWidth: geometry.DefaultRoadWidth,
			LaneWidth: geometry.DefaultLaneWidth,
		},
		Traffic: TrafficConfig{
			MaxSpeed:   60,
			SpawnRate:  5,
			Seed:       1,
			TickMillis: 50,
		},
		Lights: LightsConfig{
			GreenMillis:  5000,
			YellowMillis: 2000,
		},
		Feed: FeedConfig{
			WebSocketAddr: ":8080",
			QUICAddr:      ":8443",
			SnapshotHz:    20,
		},
		LogLevel: "info",
	}
}

// Validate checks the cross-field constraints that the decoders cannot.
func (c *Config) Validate() error {
	if _, err := c.Grid(); err != nil {
		return err
	}
	if c.Traffic.MaxSpeed <= 0 {
		return fmt.Errorf("%w: max_speed %g", ErrInvalidConfig, c.Traffic.MaxSpeed)
	}
	if c.Traffic.SpawnRate < 0 {
		return fmt.Errorf("%w: spawn_rate %g", ErrInvalidConfig, c.Traffic.SpawnRate)
	}
	if c.Traffic.TickMillis <= 0 {
		return fmt.Errorf("%w: tick_millis %d", ErrInvalidConfig, c.Traffic.TickMillis)
	}
	if c.Lights.GreenMillis <= 0 || c.Lights.YellowMillis <= 0 {
		return fmt.Errorf("%w: light cycle %d/%d", ErrInvalidConfig, c.Lights.GreenMillis, c.Lights.YellowMillis)
	}
	if c.Feed.SnapshotHz <= 0 {
		return fmt.Errorf("%w: snapshot_hz %d", ErrInvalidConfig, c.Feed.SnapshotHz)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Grid builds the geometry layout described by the canvas section.
func (c *Config) Grid() (geometry.Grid, error) {
	return geometry.NewGrid(c.Canvas.Width, c.Canvas.Height, c.Canvas.RoadWidth, c.Canvas.LaneWidth)
}

// Settings maps the traffic section onto the fleet's live knobs.
func (c *Config) Settings() fleet.Settings {
	return fleet.Settings{
		MaxSpeed:  c.Traffic.MaxSpeed,
		SpawnRate: c.Traffic.SpawnRate,
	}
}

// Level parses the configured log level.
func (c *Config) Level() (log.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return log.LevelDebug, nil
	case "info", "":
		return log.LevelInfo, nil
	case "warn":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "fatal":
		return log.LevelFatal, nil
	default:
		return log.LevelInfo, fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
}

// LoadJSON decodes a config from JSON over the defaults.
func LoadJSON(r io.Reader) (*Config, error) {
	c := Default()
	dec := json.NewDecoder(r)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode json config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadYAML decodes a config from YAML over the defaults.
func LoadYAML(r io.Reader) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode yaml config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile picks the decoder from the file extension. A missing path yields
// the defaults.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		c := Default()
		return &c, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(f)
	default:
		return LoadYAML(f)
	}
}
