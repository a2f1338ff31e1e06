// Package control is the HTTP and websocket control surface. Every request
// is validated before it reaches a player or the sync controller.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/coreman2200/arcaluminis-show/internal/effect"
	"github.com/coreman2200/arcaluminis-show/internal/output"
	"github.com/coreman2200/arcaluminis-show/internal/player"
	"github.com/coreman2200/arcaluminis-show/internal/registry"
	"github.com/coreman2200/arcaluminis-show/internal/sequencer"
	"github.com/coreman2200/arcaluminis-show/internal/syncctl"
)

// SnapshotSaver persists live parameters.
type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, snap registry.Snapshot) (string, error)
}

// Deps are the services the surface drives. Sequencer, Snapshots, Previews
// and Outputs are optional.
type Deps struct {
	Players   []*player.Player
	Sync      *syncctl.Controller
	Sequencer *sequencer.Timeline
	Plugins   *effect.Registry
	Catalog   registry.Catalog
	Snapshots SnapshotSaver
	Previews  map[string]*output.PreviewHub
	Outputs   func() map[string][]output.Stats

	CORSOrigins    []string
	StatusInterval time.Duration
	Log            zerolog.Logger
}

type Server struct {
	Deps
	log     zerolog.Logger
	byID    map[string]*player.Player
	started time.Time
	up      websocket.Upgrader
}

func NewServer(d Deps) *Server {
	s := &Server{
		Deps:    d,
		log:     d.Log,
		byID:    make(map[string]*player.Player, len(d.Players)),
		started: time.Now(),
		up:      websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
	for _, p := range d.Players {
		s.byID[p.ID()] = p
	}
	if s.StatusInterval <= 0 {
		s.StatusInterval = time.Second
	}
	return s
}

// Handler returns the routed handler wrapped in CORS and request logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/ws/preview/{player}", s.preview)
	r.HandleFunc("/ws/status", s.statusStream)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/plugins", s.plugins).Methods(http.MethodGet)
	api.HandleFunc("/clips", s.clips).Methods(http.MethodGet)
	api.HandleFunc("/outputs", s.outputs).Methods(http.MethodGet)

	api.HandleFunc("/players", s.listPlayers).Methods(http.MethodGet)
	api.HandleFunc("/players/{player}", s.playerStatus).Methods(http.MethodGet)
	pl := api.PathPrefix("/players/{player}").Subrouter()
	pl.HandleFunc("/{action:play|pause|stop|restart|next|prev}", s.transport).Methods(http.MethodPost)
	pl.HandleFunc("/jump", s.jump).Methods(http.MethodPost)
	pl.HandleFunc("/loop_limit", s.setLoopLimit).Methods(http.MethodPut)
	pl.HandleFunc("/parameters", s.liveParameters).Methods(http.MethodGet)
	pl.HandleFunc("/snapshot", s.saveSnapshot).Methods(http.MethodPost)

	pl.HandleFunc("/playlist", s.getPlaylist).Methods(http.MethodGet)
	pl.HandleFunc("/playlist", s.addToPlaylist).Methods(http.MethodPost)
	pl.HandleFunc("/playlist/move", s.movePlaylist).Methods(http.MethodPost)
	pl.HandleFunc("/playlist/options", s.playlistOptions).Methods(http.MethodPut)
	pl.HandleFunc("/playlist/{index:[0-9]+}", s.removeFromPlaylist).Methods(http.MethodDelete)

	pl.HandleFunc("/effects", s.listGlobal).Methods(http.MethodGet)
	pl.HandleFunc("/effects", s.addGlobal).Methods(http.MethodPost)
	pl.HandleFunc("/effects/move", s.moveGlobal).Methods(http.MethodPost)
	pl.HandleFunc("/effects/{index:[0-9]+}", s.updateGlobal).Methods(http.MethodPut)
	pl.HandleFunc("/effects/{index:[0-9]+}", s.removeGlobal).Methods(http.MethodDelete)

	pl.HandleFunc("/layers", s.listLayers).Methods(http.MethodGet)
	pl.HandleFunc("/layers/{layer:[0-9]+}", s.updateLayer).Methods(http.MethodPatch)
	pl.HandleFunc("/layers/{layer:[0-9]+}/effects", s.addLayerEffect).Methods(http.MethodPost)
	pl.HandleFunc("/layers/{layer:[0-9]+}/effects/{index:[0-9]+}", s.updateLayerEffect).Methods(http.MethodPut)
	pl.HandleFunc("/layers/{layer:[0-9]+}/effects/{index:[0-9]+}", s.removeLayerEffect).Methods(http.MethodDelete)

	api.HandleFunc("/sync", s.syncStatus).Methods(http.MethodGet)
	api.HandleFunc("/sync/master", s.setMaster).Methods(http.MethodPut)
	api.HandleFunc("/sync/sequencer", s.setSequencer).Methods(http.MethodPut)
	api.HandleFunc("/sync/sequencer/seek", s.seekSequencer).Methods(http.MethodPost)
	api.HandleFunc("/sync/slot", s.advanceSlot).Methods(http.MethodPost)

	origins := s.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("took", time.Since(start)).Msg("http")
	})
}

func (s *Server) player(r *http.Request) (*player.Player, error) {
	id := mux.Vars(r)["player"]
	p, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", syncctl.ErrUnknownPlayer, id)
	}
	return p, nil
}

func intVar(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return v, nil
}

const maxBody = 1 << 20

// decode reads a JSON body, rejecting unknown fields and trailing data.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", errBadRequest)
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	players := make(map[string]string, len(s.Players))
	for _, p := range s.Players {
		players[p.ID()] = p.State().String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"uptime_s": time.Since(s.started).Seconds(),
		"players":  players,
	})
}

func (s *Server) plugins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Plugins.List())
}

func (s *Server) clips(w http.ResponseWriter, r *http.Request) {
	if s.Catalog == nil {
		writeJSON(w, http.StatusOK, []registry.Clip{})
		return
	}
	list, err := s.Catalog.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) outputs(w http.ResponseWriter, r *http.Request) {
	if s.Outputs == nil {
		writeJSON(w, http.StatusOK, map[string][]output.Stats{})
		return
	}
	writeJSON(w, http.StatusOK, s.Outputs())
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["player"]
	hub, ok := s.Previews[id]
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: no preview for %s", syncctl.ErrUnknownPlayer, id))
		return
	}
	hub.ServeHTTP(w, r)
}

// StatusMessage is pushed on /ws/status.
type StatusMessage struct {
	Players   []player.Status   `json:"players"`
	Sync      syncctl.Status    `json:"sync"`
	Sequencer *sequencer.Status `json:"sequencer,omitempty"`
}

func (s *Server) snapshot() StatusMessage {
	msg := StatusMessage{Players: make([]player.Status, 0, len(s.Players))}
	for _, p := range s.Players {
		msg.Players = append(msg.Players, p.Status())
	}
	if s.Sync != nil {
		msg.Sync = s.Sync.Status()
	}
	if s.Sequencer != nil {
		st := s.Sequencer.Status()
		msg.Sequencer = &st
	}
	return msg
}

func (s *Server) statusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	ticker := time.NewTicker(s.StatusInterval)
	defer ticker.Stop()
	for {
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteJSON(s.snapshot()); err != nil {
			return
		}
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
