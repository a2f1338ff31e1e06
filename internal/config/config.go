// Package config loads the show configuration from YAML or TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/coreman2200/arcaluminis-show/internal/effect"
	"github.com/coreman2200/arcaluminis-show/internal/output"
	"github.com/coreman2200/arcaluminis-show/internal/playlist"
	"github.com/coreman2200/arcaluminis-show/internal/registry"
	"github.com/coreman2200/arcaluminis-show/internal/sequencer"
)

type Log struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // auto | console | json
}

type Canvas struct {
	Width  int `yaml:"width" toml:"width"`
	Height int `yaml:"height" toml:"height"`
}

type HTTP struct {
	Addr        string   `yaml:"addr" toml:"addr"`
	CORSOrigins []string `yaml:"cors_origins,omitempty" toml:"cors_origins,omitempty"`
}

// Registry points at an optional SQLite clip store. Without a path the
// inline clips are the catalog.
type Registry struct {
	Path string `yaml:"path,omitempty" toml:"path,omitempty"`
}

// Player configures one playback pipeline. Zero canvas, fps and a nil
// loop_limit fall back to the top-level values.
type Player struct {
	ID            string                       `yaml:"id" toml:"id"`
	Canvas        Canvas                       `yaml:"canvas,omitempty" toml:"canvas,omitempty"`
	FPS           float64                      `yaml:"fps,omitempty" toml:"fps,omitempty"`
	LoopLimit     *int                         `yaml:"loop_limit,omitempty" toml:"loop_limit,omitempty"`
	Autoplay      *bool                        `yaml:"autoplay,omitempty" toml:"autoplay,omitempty"`
	Loop          bool                         `yaml:"loop" toml:"loop"`
	Playlist      []string                     `yaml:"playlist" toml:"playlist"`
	GlobalEffects []effect.Spec                `yaml:"global_effects,omitempty" toml:"global_effects,omitempty"`
	Overrides     map[string]playlist.Override `yaml:"overrides,omitempty" toml:"overrides,omitempty"`
	Start         bool                         `yaml:"start,omitempty" toml:"start,omitempty"`
}

func (p Player) AutoplayValue() bool { return p.Autoplay == nil || *p.Autoplay }

// Output attaches a sink to a player.
type Output struct {
	Player     string        `yaml:"player" toml:"player"`
	Kind       string        `yaml:"kind" toml:"kind"` // led | console | sim | preview
	Name       string        `yaml:"name,omitempty" toml:"name,omitempty"`
	SPIDev     string        `yaml:"spi_dev,omitempty" toml:"spi_dev,omitempty"`
	FreqKHz    int           `yaml:"freq_khz,omitempty" toml:"freq_khz,omitempty"`
	Layout     output.Layout `yaml:"layout,omitempty" toml:"layout,omitempty"`
	Buffer     int           `yaml:"buffer,omitempty" toml:"buffer,omitempty"`
	IntervalMS int           `yaml:"interval_ms,omitempty" toml:"interval_ms,omitempty"`
}

type Sequencer struct {
	Enabled bool             `yaml:"enabled" toml:"enabled"`
	TickMS  int              `yaml:"tick_ms,omitempty" toml:"tick_ms,omitempty"`
	Loop    bool             `yaml:"loop,omitempty" toml:"loop,omitempty"`
	Slots   []sequencer.Slot `yaml:"slots,omitempty" toml:"slots,omitempty"`
}

func (s Sequencer) Program() sequencer.Program {
	return sequencer.Program{Loop: s.Loop, Slots: s.Slots}
}

type Sync struct {
	Master    string    `yaml:"master,omitempty" toml:"master,omitempty"`
	QueueSize int       `yaml:"queue_size,omitempty" toml:"queue_size,omitempty"`
	Sequencer Sequencer `yaml:"sequencer,omitempty" toml:"sequencer,omitempty"`
}

type Config struct {
	Log       Log             `yaml:"log" toml:"log"`
	Canvas    Canvas          `yaml:"canvas" toml:"canvas"`
	FPS       float64         `yaml:"fps" toml:"fps"`
	LoopLimit int             `yaml:"loop_limit" toml:"loop_limit"`
	HTTP      HTTP            `yaml:"http" toml:"http"`
	LockFile  string          `yaml:"lock_file,omitempty" toml:"lock_file,omitempty"`
	Registry  Registry        `yaml:"registry,omitempty" toml:"registry,omitempty"`
	Clips     []registry.Clip `yaml:"clips,omitempty" toml:"clips,omitempty"`
	Players   []Player        `yaml:"players" toml:"players"`
	Sync      Sync            `yaml:"sync,omitempty" toml:"sync,omitempty"`
	Outputs   []Output        `yaml:"outputs,omitempty" toml:"outputs,omitempty"`
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Load reads path, YAML or TOML by extension, applies defaults and
// validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(b, isTOML(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes b, applies defaults and validates.
func Parse(b []byte, asTOML bool) (*Config, error) {
	var c Config
	if asTOML {
		if err := toml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func Save(path string, c *Config) error {
	var (
		b   []byte
		err error
	)
	if isTOML(path) {
		b, err = toml.Marshal(c)
	} else {
		b, err = yaml.Marshal(c)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// WriteSample writes the sample configuration to path unless a file is
// already there.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return Save(path, Sample())
}

// PlayerFor returns the player entry with id.
func (c *Config) PlayerFor(id string) (Player, bool) {
	for _, p := range c.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}
