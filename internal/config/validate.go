package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/coreman2200/arcaluminis-show/internal/logging"
)

var ErrInvalid = errors.New("config: invalid")

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLog(); err != nil {
		return err
	}
	if err := c.validateClips(); err != nil {
		return err
	}
	if err := c.validatePlayers(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateOutputs(); err != nil {
		return err
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func (c *Config) validateLog() error {
	if !logging.ValidFormat(c.Log.Format) {
		return invalid("log.format %q must be auto, console or json", c.Log.Format)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return invalid("log.level %q", c.Log.Level)
	}
	return nil
}

func (c *Config) validateClips() error {
	seen := map[string]bool{}
	for i, clip := range c.Clips {
		if err := clip.Validate(); err != nil {
			return invalid("clips[%d]: %v", i, err)
		}
		if seen[clip.ID] {
			return invalid("clips[%d]: duplicate id %q", i, clip.ID)
		}
		seen[clip.ID] = true
	}
	return nil
}

// inlineCatalog reports whether playlist ids can be checked here.
func (c *Config) inlineCatalog() bool { return c.Registry.Path == "" }

func (c *Config) validatePlayers() error {
	if len(c.Players) == 0 {
		return invalid("at least one player is required")
	}
	clips := map[string]bool{}
	for _, clip := range c.Clips {
		clips[clip.ID] = true
	}
	seen := map[string]bool{}
	for i, p := range c.Players {
		if p.ID == "" {
			return invalid("players[%d]: id is required", i)
		}
		if seen[p.ID] {
			return invalid("players[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		if p.LoopLimit != nil && *p.LoopLimit < -1 {
			return invalid("player %s: loop_limit must be -1 or more", p.ID)
		}
		if !c.inlineCatalog() {
			continue
		}
		for j, id := range p.Playlist {
			if !clips[id] {
				return invalid("player %s: playlist[%d] names unknown clip %q", p.ID, j, id)
			}
		}
		for id := range p.Overrides {
			if !clips[id] {
				return invalid("player %s: override for unknown clip %q", p.ID, id)
			}
		}
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.Master != "" {
		if _, ok := c.PlayerFor(c.Sync.Master); !ok {
			return invalid("sync.master %q is not a configured player", c.Sync.Master)
		}
	}
	seq := c.Sync.Sequencer
	if seq.Enabled {
		if c.Sync.Master != "" {
			return invalid("sync.master and sync.sequencer.enabled are exclusive")
		}
		if err := seq.Program().Validate(); err != nil {
			return invalid("sync.sequencer: %v", err)
		}
	}
	return nil
}

func (c *Config) validateOutputs() error {
	for i, o := range c.Outputs {
		if _, ok := c.PlayerFor(o.Player); !ok {
			return invalid("outputs[%d]: unknown player %q", i, o.Player)
		}
		switch o.Kind {
		case "led", "console", "sim", "preview":
		default:
			return invalid("outputs[%d]: unknown kind %q", i, o.Kind)
		}
	}
	return nil
}
