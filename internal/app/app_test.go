package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/arcaluminis-show/internal/config"
	"github.com/coreman2200/arcaluminis-show/internal/output"
	"github.com/coreman2200/arcaluminis-show/internal/player"
	"github.com/coreman2200/arcaluminis-show/internal/registry"
)

const showDoc = `
canvas: {width: 4, height: 2}
fps: 100
loop_limit: -1
clips:
  - id: red
    layers: [{source: solid, params: {color: red}}]
  - id: blue
    effects: [{plugin: brightness, params: {level: 0.5}}]
    layers: [{source: solid, params: {color: blue}}]
players:
  - id: main
    playlist: [red, blue]
    loop: true
    start: true
    global_effects: [{plugin: invert}]
  - id: side
    playlist: [blue]
    start: true
sync:
  master: main
outputs:
  - {player: main, kind: sim}
  - {player: main, kind: preview}
  - {player: side, kind: sim}
`

func parse(t *testing.T, doc string) *config.Config {
	t.Helper()
	c, err := config.Parse([]byte(doc), false)
	require.NoError(t, err)
	return c
}

func serve(t *testing.T, a *App) (base string, stop func() error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()
	return "http://" + ln.Addr().String(), func() error {
		cancel()
		return <-done
	}
}

func TestNewWiresPlayersAndOutputs(t *testing.T) {
	a, err := New(context.Background(), parse(t, showDoc), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	require.Len(t, a.Players, 2)
	assert.Equal(t, 1, a.Players[0].Global().Len())
	assert.Equal(t, "main", a.Sync.Master())
	assert.True(t, a.Players[1].IsSlave())
	assert.Contains(t, a.Previews, "main")
	assert.Len(t, a.Fanouts["main"].Stats(), 2)
	assert.Nil(t, a.Sequencer)
	assert.Nil(t, a.Store)
}

func TestServeRunsTheShow(t *testing.T) {
	a, err := New(context.Background(), parse(t, showDoc), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()
	base, stop := serve(t, a)

	assert.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		for _, st := range a.OutputStats()["side"] {
			if st.Sent > 0 {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, player.Playing, a.Players[0].State())

	// red inverted is cyan
	assert.Eventually(t, func() bool {
		f := a.Players[0].LastFrame()
		return f.Pix[0] == 0 && f.Pix[1] == 255 && f.Pix[2] == 255
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(base+"/api/players/main/next", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Eventually(t, a.Players[1].AutoStopped, 2*time.Second, 10*time.Millisecond, "side has no second clip and blacks out")

	assert.ErrorIs(t, stop(), context.Canceled)
}

func TestStoreBackedCatalog(t *testing.T) {
	doc := fmt.Sprintf("registry: {path: %q}\n%s", filepath.Join(t.TempDir(), "clips.db"), showDoc)
	a, err := New(context.Background(), parse(t, doc), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Store)

	clips, err := a.Catalog.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, clips, 2)

	base, stop := serve(t, a)
	defer stop()
	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Post(base+"/api/players/main/snapshot", "application/json", nil)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var snap registry.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.NotEmpty(t, snap.ID)

	got, err := a.Store.LatestSnapshot(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)
}

func TestSequencerEngagesOnStart(t *testing.T) {
	doc := `
clips:
  - id: a
    layers: [{source: solid, params: {color: white}}]
  - id: b
    layers: [{source: solid, params: {color: red}}]
players:
  - {id: one, playlist: [a, b], global_effects: [{plugin: brightness}]}
  - {id: two, playlist: [b]}
sync:
  sequencer:
    enabled: true
    tick_ms: 5
    slots:
      - {duration_s: 0.05}
      - duration_s: 10
        envelopes:
          brightness.level: [{t: 0, v: 0.25}]
`
	a, err := New(context.Background(), parse(t, doc), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Sequencer)
	_, stop := serve(t, a)
	defer stop()

	assert.Eventually(t, a.Sync.SequencerActive, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return a.Players[0].Playlist().Cursor() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return a.Players[0].Global().Entries()[0].Parameters["level"] == 0.25
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, a.Players[1].AutoStopped())
}

func TestOpenSinkKinds(t *testing.T) {
	p := config.Player{Canvas: config.Canvas{Width: 4, Height: 1}}
	s, err := OpenSink(config.Output{Kind: "sim"}, p, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &output.SimSink{}, s)

	s, err = OpenSink(config.Output{Kind: "preview"}, p, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "preview", s.Name())

	_, err = OpenSink(config.Output{Kind: "dmx"}, p, zerolog.Nop())
	assert.Error(t, err)
}
