package control

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/coreman2200/arcaluminis-show/internal/blend"
	"github.com/coreman2200/arcaluminis-show/internal/effect"
	"github.com/coreman2200/arcaluminis-show/internal/layer"
	"github.com/coreman2200/arcaluminis-show/internal/player"
	"github.com/coreman2200/arcaluminis-show/internal/sequencer"
)

func (s *Server) listPlayers(w http.ResponseWriter, r *http.Request) {
	out := make([]player.Status, 0, len(s.Players))
	for _, p := range s.Players {
		out = append(out, p.Status())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) playerStatus(w http.ResponseWriter, r *http.Request) {
	p, err := s.player(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Status())
}

func (s *Server) transport(w http.ResponseWriter, r *http.Request) {
	p, err := s.player(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := r.Context()
	switch mux.Vars(r)["action"] {
	case "play":
		err = p.Play(ctx)
	case "pause":
		p.Pause()
	case "stop":
		p.Stop()
	case "restart":
		err = p.Restart(ctx)
	case "next":
		err = p.Next(ctx)
	case "prev":
		err = p.Previous(ctx)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Status())
}

type indexRequest struct {
	Index *int `json:"index"`
}

func (s *Server) jump(w http.ResponseWriter, r *http.Request) {
	p, err := s.player(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req indexRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Index == nil || *req.Index < 0 || *req.Index >= p.PlaylistLen() {
		s.fail(w, r, fmt.Errorf("%w: index must be within the playlist", errBadRequest))
		return
	}
	if err := p.Jump(r.Context(), *req.Index); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Status())
}

func (s *Server) setLoopLimit(w http.ResponseWriter, r *http.Request) {
	p, err := s.player(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		LoopLimit *int `json:"loop_limit"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.LoopLimit == nil || *req.LoopLimit < -1 {
		s.fail(w, r, fmt.Errorf("%w: loop_limit must be -1 or more", errBadRequest))
		return
	}
	p.SetLoopLimit(*req.LoopLimit)
	writeJSON(w, http.StatusOK, p.Status())
}

func (s *Server) liveParameters(w http.ResponseWriter, r *http.Request) {
	p, err := s.player(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.LiveParameters())
}

func (s *Server) saveSnapshot(w http.ResponseWriter, r *http.Request) {
	p, err := s.player(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.Snapshots == nil {
		s.fail(w, r, fmt.Errorf("%w: no clip store configured", errBadRequest))
		return
	}
	snap := p.LiveParameters()
	id, err := s.Snapshots.SaveSnapshot(r.Context(), snap)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	snap.ID = id
	writeJSON(w, http.StatusCreated, snap)
}

// playlist

func (s *Server) getPlaylist(w http.ResponseWriter, r *http.Request) {
	p, err := s.player(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Playlist().State())
}

func (s *Server) addToPlaylist(w http.ResponseWriter, r *http.Request) {
	p, err := s.player(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		ClipID string `json:"clip_id"`
		Index  *int   `json:"index"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.ClipID == "" {
		s.fail(w, r, fmt.Errorf("%w: clip_id is required", errBadRequest))
		return
	}
	if s.Catalog != nil {
		if _, err := s.Catalog.Clip(r.Context(), req.ClipID); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	list := p.Playlist()
	if req.Index != nil {
		err = list.Insert(*req.Index, req.ClipID)
	} else {
		_, err = list.Add(req.ClipID)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list.State())
}

func (s *Server) removeFromPlaylist(w http.ResponseWriter, r *http.Request) {
	p, err := s.player(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	i, err := intVar(r, "index")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := p.Playlist().Remove(i); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Playlist().State())
}

type moveRequest struct {
	From *int `json:"from"`
	To   *int `json:"to"`
}

func (m moveRequest) check() error {
	if m.From == nil || m.To == nil {
		return fmt.Errorf("%w: from and to are required", errBadRequest)
	}
	return nil
}

func (s *Server) movePlaylist(w http.ResponseWriter, r *http.Request) {
	p, err := s.player(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req moveRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := req.check(); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := p.Playlist().Move(*req.From, *req.To); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Playlist().State())
}

func (s *Server) playlistOptions(w http.ResponseWriter, r *http.Request) {
	p, err := s.player(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		Autoplay *bool `json:"autoplay"`
		Loop     *bool `json:"loop"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Autoplay != nil {
		p.Playlist().SetAutoplay(*req.Autoplay)
	}
	if req.Loop != nil {
		p.Playlist().SetLoop(*req.Loop)
	}
	writeJSON(w, http.StatusOK, p.Playlist().State())
}

// effect chains

type addEffectRequest struct {
	PluginID   string         `json:"plugin_id"`
	Parameters map[string]any `json:"parameters"`
	Index      *int           `json:"index"`
	Enabled    *bool          `json:"enabled"`
}

type updateEffectRequest struct {
	Enabled    *bool          `json:"enabled"`
	Parameters map[string]any `json:"parameters"`
}

func (s *Server) addEffect(w http.ResponseWriter, r *http.Request, c *effect.Chain) {
	var req addEffectRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Plugins.ValidateSpec(effect.Spec{PluginID: req.PluginID, Params: req.Parameters}); err != nil {
		s.fail(w, r, err)
		return
	}
	i := c.Len()
	if req.Index != nil {
		i = *req.Index
	}
	if err := c.Insert(i, req.PluginID, req.Parameters); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Enabled != nil && !*req.Enabled {
		_ = c.SetEnabled(i, false)
	}
	writeJSON(w, http.StatusCreated, c.Entries())
}

func (s *Server) updateEffect(w http.ResponseWriter, r *http.Request, c *effect.Chain) {
	i, err := intVar(r, "index")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req updateEffectRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	entries := c.Entries()
	if i >= len(entries) {
		s.fail(w, r, fmt.Errorf("%w: %d (len %d)", effect.ErrIndexOutOfRange, i, len(entries)))
		return
	}
	if len(req.Parameters) > 0 {
		if err := s.Plugins.ValidateSpec(effect.Spec{PluginID: entries[i].PluginID, Params: req.Parameters}); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	for name, v := range req.Parameters {
		if err := c.UpdateParameter(i, name, v); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if req.Enabled != nil {
		if err := c.SetEnabled(i, *req.Enabled); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, c.Entries())
}

func (s *Server) removeEffect(w http.ResponseWriter, r *http.Request, c *effect.Chain) {
	i, err := intVar(r, "index")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := c.Remove(i); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Entries())
}

// globalChain resolves the player's global chain or writes the failure.
func (s *Server) globalChain(w http.ResponseWriter, r *http.Request) (*effect.Chain, bool) {
	p, err := s.player(r)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return p.Global(), true
}

func (s *Server) listGlobal(w http.ResponseWriter, r *http.Request) {
	if c, ok := s.globalChain(w, r); ok {
		writeJSON(w, http.StatusOK, c.Entries())
	}
}

func (s *Server) addGlobal(w http.ResponseWriter, r *http.Request) {
	if c, ok := s.globalChain(w, r); ok {
		s.addEffect(w, r, c)
	}
}

func (s *Server) updateGlobal(w http.ResponseWriter, r *http.Request) {
	if c, ok := s.globalChain(w, r); ok {
		s.updateEffect(w, r, c)
	}
}

func (s *Server) removeGlobal(w http.ResponseWriter, r *http.Request) {
	if c, ok := s.globalChain(w, r); ok {
		s.removeEffect(w, r, c)
	}
}

func (s *Server) moveGlobal(w http.ResponseWriter, r *http.Request) {
	c, ok := s.globalChain(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := req.check(); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := c.Move(*req.From, *req.To); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Entries())
}

// layers

func (s *Server) layer(w http.ResponseWriter, r *http.Request) (*layer.Layer, bool) {
	p, err := s.player(r)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	id, err := intVar(r, "layer")
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	l, ok := p.Layers().Layer(id)
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: layer %d", layer.ErrNotFound, id))
		return nil, false
	}
	return l, true
}

func (s *Server) listLayers(w http.ResponseWriter, r *http.Request) {
	p, err := s.player(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Layers().Layers())
}

func (s *Server) updateLayer(w http.ResponseWriter, r *http.Request) {
	l, ok := s.layer(w, r)
	if !ok {
		return
	}
	var req struct {
		BlendMode *string  `json:"blend_mode"`
		Opacity   *float64 `json:"opacity"`
		Enabled   *bool    `json:"enabled"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	mode := l.Mode()
	if req.BlendMode != nil {
		m, err := blend.ParseMode(*req.BlendMode)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		mode = m
	}
	if req.Opacity != nil && (*req.Opacity < 0 || *req.Opacity > 100 || *req.Opacity != *req.Opacity) {
		s.fail(w, r, fmt.Errorf("%w: opacity must be within [0,100]", errBadRequest))
		return
	}
	l.SetMode(mode)
	if req.Opacity != nil {
		l.SetOpacity(*req.Opacity)
	}
	if req.Enabled != nil {
		l.SetEnabled(*req.Enabled)
	}
	writeJSON(w, http.StatusOK, l.Info())
}

func (s *Server) addLayerEffect(w http.ResponseWriter, r *http.Request) {
	if l, ok := s.layer(w, r); ok {
		s.addEffect(w, r, l.Effects)
	}
}

func (s *Server) updateLayerEffect(w http.ResponseWriter, r *http.Request) {
	if l, ok := s.layer(w, r); ok {
		s.updateEffect(w, r, l.Effects)
	}
}

func (s *Server) removeLayerEffect(w http.ResponseWriter, r *http.Request) {
	if l, ok := s.layer(w, r); ok {
		s.removeEffect(w, r, l.Effects)
	}
}

// sync

func (s *Server) syncStatus(w http.ResponseWriter, r *http.Request) {
	msg := s.snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"sync": msg.Sync, "sequencer": msg.Sequencer})
}

func (s *Server) setMaster(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Player *string `json:"player"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Player == nil {
		s.fail(w, r, fmt.Errorf("%w: player is required (empty clears the master)", errBadRequest))
		return
	}
	if err := s.Sync.SetMaster(r.Context(), *req.Player); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Sync.Status())
}

func (s *Server) setSequencer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State sequencer.State `json:"state"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	switch req.State {
	case sequencer.Running, sequencer.Paused, sequencer.Idle:
	default:
		s.fail(w, r, fmt.Errorf("%w: state must be running, paused or idle", errBadRequest))
		return
	}
	if s.Sequencer == nil {
		// no slot program: only the mode switch is available
		switch req.State {
		case sequencer.Running:
			s.Sync.EnableSequencer()
		case sequencer.Idle:
			s.Sync.DisableSequencer()
		default:
			s.fail(w, r, sequencer.ErrEmptyProgram)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sync": s.Sync.Status()})
		return
	}
	switch req.State {
	case sequencer.Running:
		if err := s.Sequencer.Start(r.Context()); err != nil {
			s.fail(w, r, err)
			return
		}
	case sequencer.Paused:
		s.Sequencer.Pause()
	case sequencer.Idle:
		s.Sequencer.Stop()
	}
	st := s.Sequencer.Status()
	writeJSON(w, http.StatusOK, map[string]any{"sync": s.Sync.Status(), "sequencer": st})
}

func (s *Server) seekSequencer(w http.ResponseWriter, r *http.Request) {
	if s.Sequencer == nil {
		s.fail(w, r, sequencer.ErrEmptyProgram)
		return
	}
	var req struct {
		PositionS *float64 `json:"position_s"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.PositionS == nil || *req.PositionS < 0 {
		s.fail(w, r, fmt.Errorf("%w: position_s must be >= 0", errBadRequest))
		return
	}
	s.Sequencer.Seek(r.Context(), *req.PositionS)
	writeJSON(w, http.StatusOK, s.Sequencer.Status())
}

func (s *Server) advanceSlot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slot *int `json:"slot"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Slot == nil || *req.Slot < 0 {
		s.fail(w, r, fmt.Errorf("%w: slot must be >= 0", errBadRequest))
		return
	}
	if err := s.Sync.AdvanceAllToSlot(r.Context(), *req.Slot); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Sync.Status())
}
