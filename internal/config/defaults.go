package config

import (
	"github.com/coreman2200/arcaluminis-show/internal/blend"
	"github.com/coreman2200/arcaluminis-show/internal/effect"
	"github.com/coreman2200/arcaluminis-show/internal/output"
	"github.com/coreman2200/arcaluminis-show/internal/registry"
	"github.com/coreman2200/arcaluminis-show/internal/sequencer"
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "auto"
	defaultWidth     = 32
	defaultHeight    = 8
	defaultFPS       = 30
	defaultLoopLimit = -1
	defaultHTTPAddr  = "127.0.0.1:8787"
	defaultLockFile  = "showd.lock"
	defaultTickMS    = 20
)

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}
	if c.Canvas.Width <= 0 {
		c.Canvas.Width = defaultWidth
	}
	if c.Canvas.Height <= 0 {
		c.Canvas.Height = defaultHeight
	}
	if c.FPS <= 0 {
		c.FPS = defaultFPS
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = defaultHTTPAddr
	}
	if c.LockFile == "" {
		c.LockFile = defaultLockFile
	}
	if c.Sync.Sequencer.TickMS <= 0 {
		c.Sync.Sequencer.TickMS = defaultTickMS
	}
	for i := range c.Players {
		p := &c.Players[i]
		if p.Canvas.Width <= 0 {
			p.Canvas.Width = c.Canvas.Width
		}
		if p.Canvas.Height <= 0 {
			p.Canvas.Height = c.Canvas.Height
		}
		if p.FPS <= 0 {
			p.FPS = c.FPS
		}
		if p.LoopLimit == nil {
			v := c.LoopLimit
			p.LoopLimit = &v
		}
	}
	for i := range c.Outputs {
		o := &c.Outputs[i]
		if o.Kind == "led" && o.FreqKHz <= 0 {
			o.FreqKHz = output.DefaultFreqKHz
		}
		if o.Buffer <= 0 {
			o.Buffer = output.DefaultDepth
		}
	}
}

// Sample is the configuration written by "showd config init": two players
// on one canvas, a console strip and a preview stream.
func Sample() *Config {
	half := 50.0
	loops := 1
	c := &Config{
		Log:       Log{Level: defaultLogLevel, Format: defaultLogFormat},
		Canvas:    Canvas{Width: defaultWidth, Height: defaultHeight},
		FPS:       defaultFPS,
		LoopLimit: defaultLoopLimit,
		HTTP:      HTTP{Addr: defaultHTTPAddr},
		LockFile:  defaultLockFile,
		Clips: []registry.Clip{
			{ID: "warmup", Name: "Warm up", Layers: []registry.LayerDef{
				{SourceType: "gradient", Params: map[string]any{"axis": "x", "speed": 0.25}},
				{SourceType: "solid", Params: map[string]any{"color": "#ff6600"}, BlendMode: blend.Screen, Opacity: &half},
			}},
			{ID: "sweep", Name: "Calibration sweep", Layers: []registry.LayerDef{
				{SourceType: "testpattern", Params: map[string]any{"pattern": "index_sweep"}},
			}},
			{ID: "pulse", Name: "Pulse", Effects: []effect.Spec{{PluginID: "tint", Params: map[string]any{"b": 255, "amount": 0.3}}},
				Layers: []registry.LayerDef{{SourceType: "solid", Params: map[string]any{"color": "white", "pulse_hz": 0.5}}}},
		},
		Players: []Player{
			{ID: "main", Loop: true, Playlist: []string{"warmup", "sweep", "pulse"}, LoopLimit: &loops, Start: true,
				GlobalEffects: []effect.Spec{{PluginID: "brightness", Params: map[string]any{"level": 0.8}}}},
			{ID: "accent", Loop: true, Playlist: []string{"pulse", "warmup"}, Start: true},
		},
		Sync: Sync{
			Master: "main",
			Sequencer: Sequencer{TickMS: defaultTickMS, Loop: true, Slots: []sequencer.Slot{
				{Name: "intro", DurationS: 8},
				{Name: "drop", DurationS: 16, Envelopes: map[string]sequencer.Envelope{
					"brightness.level": {{T: 0, V: 0.2, Ease: sequencer.Smooth}, {T: 16, V: 1}},
				}},
			}},
		},
		Outputs: []Output{
			{Player: "main", Kind: "console", Layout: output.Strip(defaultWidth)},
			{Player: "main", Kind: "preview"},
			{Player: "accent", Kind: "sim", IntervalMS: 1000},
		},
	}
	c.applyDefaults()
	return c
}
