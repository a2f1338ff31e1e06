package control

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coreman2200/arcaluminis-show/internal/blend"
	"github.com/coreman2200/arcaluminis-show/internal/effect"
	"github.com/coreman2200/arcaluminis-show/internal/layer"
	"github.com/coreman2200/arcaluminis-show/internal/player"
	"github.com/coreman2200/arcaluminis-show/internal/playlist"
	"github.com/coreman2200/arcaluminis-show/internal/registry"
	"github.com/coreman2200/arcaluminis-show/internal/sequencer"
	"github.com/coreman2200/arcaluminis-show/internal/syncctl"
)

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

// Diagnostic is the body of every failed request.
type Diagnostic struct {
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
}

var errBadRequest = errors.New("bad request")

type rule struct {
	target  error
	status  int
	code    string
	summary string
	fix     string
}

// rules map sentinel errors to responses, first match wins.
var rules = []rule{
	{syncctl.ErrUnknownPlayer, http.StatusNotFound, "PLAYER.NOT_FOUND", "No such player", ""},
	{registry.ErrNotFound, http.StatusNotFound, "CLIP.NOT_FOUND", "No such clip", "List clips with GET /api/clips"},
	{layer.ErrNotFound, http.StatusNotFound, "LAYER.NOT_FOUND", "No such layer in the current clip", ""},
	{effect.ErrUnknownPlugin, http.StatusBadRequest, "EFFECT.UNKNOWN_PLUGIN", "Unknown effect plugin", "List plugins with GET /api/plugins"},
	{effect.ErrInvalidParameter, http.StatusBadRequest, "EFFECT.INVALID_PARAMETER", "Parameter rejected", ""},
	{effect.ErrIndexOutOfRange, http.StatusBadRequest, "EFFECT.INDEX", "Effect index out of range", ""},
	{playlist.ErrOutOfRange, http.StatusBadRequest, "PLAYLIST.INDEX", "Playlist index out of range", ""},
	{playlist.ErrEmptyID, http.StatusBadRequest, "PLAYLIST.EMPTY_ID", "Clip id is required", ""},
	{layer.ErrOutOfRange, http.StatusBadRequest, "LAYER.INDEX", "Layer position out of range", ""},
	{blend.ErrUnknownMode, http.StatusBadRequest, "LAYER.BLEND_MODE", "Unknown blend mode", ""},
	{sequencer.ErrEmptyProgram, http.StatusConflict, "SEQUENCER.EMPTY", "No slot program loaded", "Add sync.sequencer.slots to the config"},
	{syncctl.ErrSequencerActive, http.StatusConflict, "SYNC.SEQUENCER_ACTIVE", "Sequencer mode is active", "Stop the sequencer first"},
	{syncctl.ErrSequencerInactive, http.StatusConflict, "SYNC.SEQUENCER_OFF", "Sequencer mode is off", ""},
	{layer.ErrBaseLayer, http.StatusConflict, "LAYER.BASE", "The base layer cannot be removed", ""},
	{player.ErrEmptyPlaylist, http.StatusConflict, "PLAYER.EMPTY_PLAYLIST", "Playlist is empty", ""},
	{player.ErrNoClip, http.StatusConflict, "PLAYER.NO_CLIP", "No clip in that direction", ""},
	{errBadRequest, http.StatusBadRequest, "REQUEST.INVALID", "Invalid request", ""},
}

func diagnose(err error) (int, Diagnostic) {
	for _, r := range rules {
		if errors.Is(err, r.target) {
			d := Diagnostic{Severity: Err, Code: r.code, Summary: r.summary, Detail: err.Error()}
			if r.fix != "" {
				d.SuggestedFixes = []string{r.fix}
			}
			if r.status < 500 {
				d.Severity = Warn
			}
			return r.status, d
		}
	}
	return http.StatusInternalServerError, Diagnostic{Severity: Err, Code: "INTERNAL", Summary: "Request failed", Detail: err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, d := diagnose(err)
	ev := s.log.Debug()
	if status >= 500 {
		ev = s.log.Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Str("code", d.Code).Msg("request rejected")
	writeJSON(w, status, d)
}
