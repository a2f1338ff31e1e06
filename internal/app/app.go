// Package app assembles the show from configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/arcaluminis-show/internal/config"
	"github.com/coreman2200/arcaluminis-show/internal/control"
	"github.com/coreman2200/arcaluminis-show/internal/effect"
	"github.com/coreman2200/arcaluminis-show/internal/effect/fx"
	"github.com/coreman2200/arcaluminis-show/internal/logging"
	"github.com/coreman2200/arcaluminis-show/internal/output"
	"github.com/coreman2200/arcaluminis-show/internal/player"
	"github.com/coreman2200/arcaluminis-show/internal/playlist"
	"github.com/coreman2200/arcaluminis-show/internal/registry"
	"github.com/coreman2200/arcaluminis-show/internal/sequencer"
	"github.com/coreman2200/arcaluminis-show/internal/source"
	"github.com/coreman2200/arcaluminis-show/internal/syncctl"
)

// SinkOpener builds the sink for one output entry.
type SinkOpener func(o config.Output, p config.Player, log zerolog.Logger) (output.Sink, error)

type Option func(*App)

// WithSinkOpener replaces the hardware-aware default.
func WithSinkOpener(fn SinkOpener) Option { return func(a *App) { a.openSink = fn } }

// App owns every long-lived service of one show process.
type App struct {
	Config    *config.Config
	Sources   *source.Registry
	Plugins   *effect.Registry
	Catalog   registry.Catalog
	Store     *registry.Store
	Players   []*player.Player
	Fanouts   map[string]*output.Fanout
	Previews  map[string]*output.PreviewHub
	Sync      *syncctl.Controller
	Sequencer *sequencer.Timeline
	Control   *control.Server

	log      zerolog.Logger
	openSink SinkOpener
}

// New builds the show described by cfg. Nothing runs until Run.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	a := &App{
		Config:   cfg,
		Sources:  source.Builtins(),
		Plugins:  effect.NewRegistry(),
		Fanouts:  map[string]*output.Fanout{},
		Previews: map[string]*output.PreviewHub{},
		log:      log,
		openSink: OpenSink,
	}
	for _, o := range opts {
		o(a)
	}
	if err := fx.RegisterAll(a.Plugins); err != nil {
		return nil, err
	}
	if err := a.openCatalog(ctx); err != nil {
		return nil, err
	}
	if err := a.buildPlayers(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildSync(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.Control = control.NewServer(control.Deps{
		Players:     a.Players,
		Sync:        a.Sync,
		Sequencer:   a.Sequencer,
		Plugins:     a.Plugins,
		Catalog:     a.Catalog,
		Snapshots:   a.snapshotSaver(),
		Previews:    a.Previews,
		Outputs:     a.OutputStats,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Log:         logging.Component(log, "control"),
	})
	return a, nil
}

func (a *App) snapshotSaver() control.SnapshotSaver {
	if a.Store == nil {
		return nil
	}
	return a.Store
}

func (a *App) openCatalog(ctx context.Context) error {
	if a.Config.Registry.Path == "" {
		mem, err := registry.NewMemory(a.Config.Clips...)
		if err != nil {
			return err
		}
		a.Catalog = mem
		return nil
	}
	st, err := registry.Open(a.Config.Registry.Path)
	if err != nil {
		return err
	}
	for _, c := range a.Config.Clips {
		if _, err := st.Put(ctx, c); err != nil {
			st.Close()
			return fmt.Errorf("import clip %s: %w", c.ID, err)
		}
	}
	a.Store, a.Catalog = st, st
	return nil
}

func (a *App) buildPlayers() error {
	b := &player.StackBuilder{
		Catalog: a.Catalog,
		Sources: a.Sources,
		Plugins: a.Plugins,
		Log:     logging.Component(a.log, "builder"),
	}
	for _, pc := range a.Config.Players {
		plog := logging.Component(a.log, "player").With().Str("player", pc.ID).Logger()
		fan := output.NewFanout(plog, 0)
		a.Fanouts[pc.ID] = fan

		list := playlist.New(pc.Playlist, pc.AutoplayValue(), pc.Loop)
		for clipID, o := range pc.Overrides {
			if err := list.SetOverride(clipID, o); err != nil {
				return err
			}
		}
		loopLimit := a.Config.LoopLimit
		if pc.LoopLimit != nil {
			loopLimit = *pc.LoopLimit
		}
		p := player.New(player.Config{
			ID:        pc.ID,
			Width:     pc.Canvas.Width,
			Height:    pc.Canvas.Height,
			FPS:       pc.FPS,
			LoopLimit: loopLimit,
		}, list, b, a.Plugins, plog, player.WithConsumer(fan))
		a.Players = append(a.Players, p)
		if err := p.Global().AddSpecs(pc.GlobalEffects); err != nil {
			return fmt.Errorf("player %s global effects: %w", pc.ID, err)
		}
	}
	for _, oc := range a.Config.Outputs {
		pc, _ := a.Config.PlayerFor(oc.Player)
		olog := logging.Component(a.log, "output").With().Str("player", oc.Player).Str("kind", oc.Kind).Logger()
		sink, err := a.openSink(oc, pc, olog)
		if err != nil {
			return fmt.Errorf("output %s/%s: %w", oc.Player, oc.Kind, err)
		}
		if hub, ok := sink.(*output.PreviewHub); ok {
			a.Previews[oc.Player] = hub
		}
		a.Fanouts[oc.Player].Add(sink)
	}
	return nil
}

// OpenSink is the default SinkOpener. An LED output without an SPI port
// falls back to the console.
func OpenSink(o config.Output, p config.Player, log zerolog.Logger) (output.Sink, error) {
	lay := o.Layout
	if lay.Dim.X == 0 {
		lay = output.Layout{Dim: output.Dim{X: p.Canvas.Width, Y: p.Canvas.Height, Z: 1}}
	}
	every := time.Duration(o.IntervalMS) * time.Millisecond
	switch o.Kind {
	case "led":
		s, err := output.OpenLED(output.LEDOptions{Name: o.Name, Port: o.SPIDev, FreqKHz: o.FreqKHz, Layout: lay})
		if errors.Is(err, output.ErrNoPort) {
			log.Warn().Err(err).Msg("no spi port; printing at the console")
			return output.NewConsoleSink(lay, every), nil
		}
		return s, err
	case "console":
		return output.NewConsoleSink(lay, every), nil
	case "sim":
		return output.NewSimSink(o.Name, log, every), nil
	case "preview":
		name := o.Name
		if name == "" {
			name = "preview"
		}
		return output.NewPreviewHub(name, every, log), nil
	}
	return nil, fmt.Errorf("unknown output kind %q", o.Kind)
}

func (a *App) buildSync(ctx context.Context) error {
	a.Sync = syncctl.New(logging.Component(a.log, "sync"), a.Config.Sync.QueueSize)
	for _, p := range a.Players {
		if err := a.Sync.Add(p); err != nil {
			return err
		}
	}
	if m := a.Config.Sync.Master; m != "" {
		if err := a.Sync.SetMaster(ctx, m); err != nil {
			return err
		}
	}
	seq := a.Config.Sync.Sequencer
	if len(seq.Slots) == 0 {
		return nil
	}
	a.Sequencer = sequencer.NewTimeline(sequencer.Hooks{
		Engage: func(on bool) {
			if on {
				a.Sync.EnableSequencer()
			} else {
				a.Sync.DisableSequencer()
			}
		},
		AdvanceToSlot: a.Sync.AdvanceAllToSlot,
		SetParam:      sequencer.ChainParams(a.globalChains),
	}, logging.Component(a.log, "sequencer"))
	return a.Sequencer.Load(seq.Program())
}

func (a *App) globalChains() []*effect.Chain {
	out := make([]*effect.Chain, len(a.Players))
	for i, p := range a.Players {
		out[i] = p.Global()
	}
	return out
}

// OutputStats reports sink counters per player.
func (a *App) OutputStats() map[string][]output.Stats {
	out := make(map[string][]output.Stats, len(a.Fanouts))
	for id, f := range a.Fanouts {
		out[id] = f.Stats()
	}
	return out
}

// Run starts playback, the sync loop, the sequencer and the HTTP surface,
// then blocks until ctx ends or the listener fails.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Config.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.Config.HTTP.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error().Err(err).Str("loop", name).Msg("loop exited")
			}
		}()
	}
	for _, p := range a.Players {
		spawn("player:"+p.ID(), p.Run)
	}
	spawn("sync", a.Sync.Run)

	for i, pc := range a.Config.Players {
		if !pc.Start {
			continue
		}
		if err := a.Players[i].Play(ctx); err != nil {
			a.log.Warn().Err(err).Str("player", pc.ID).Msg("autostart failed")
		}
	}
	if a.Sequencer != nil {
		tick := time.Duration(a.Config.Sync.Sequencer.TickMS) * time.Millisecond
		if a.Config.Sync.Sequencer.Enabled {
			if err := a.Sequencer.Start(ctx); err != nil {
				a.log.Warn().Err(err).Msg("sequencer did not start")
			}
		}
		spawn("sequencer", func(ctx context.Context) error { return a.Sequencer.Run(ctx, tick) })
	}

	srv := &http.Server{Handler: a.Control.Handler(), ReadHeaderTimeout: 5 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	a.log.Info().Str("addr", ln.Addr().String()).Int("players", len(a.Players)).Msg("show running")

	select {
	case <-ctx.Done():
		err := ctx.Err()
		shut, done := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(shut)
		done()
		<-serveErr
		cancel()
		wg.Wait()
		return err
	case err := <-serveErr:
		cancel()
		wg.Wait()
		return err
	}
}

// Close stops every player, flushes outputs and closes the store.
func (a *App) Close() error {
	var errs []error
	if a.Sequencer != nil {
		a.Sequencer.Stop()
	}
	for _, p := range a.Players {
		p.Close()
	}
	for id, f := range a.Fanouts {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("outputs %s: %w", id, err))
		}
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
