package output

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

func TestLayoutSerpentine(t *testing.T) {
	l := Layout{Dim: Dim{X: 3, Y: 2, Z: 2}, Order: Serpentine{XFlipEveryRow: true, YFlipEveryPanel: true}}
	assert.Equal(t, 12, l.Count())
	w, h := l.FrameSize()
	assert.Equal(t, 3, w)
	assert.Equal(t, 4, h)

	assert.Equal(t, 0, l.Index(0, 0, 0))
	assert.Equal(t, 5, l.Index(0, 1, 0), "odd rows run backwards")
	assert.Equal(t, 3, l.Index(2, 1, 0))
	assert.Equal(t, 9, l.Index(0, 0, 1), "odd panels start from the last row")

	straight := Strip(4)
	assert.Equal(t, 2, straight.Index(2, 0, 0))
	assert.Equal(t, 1, Layout{}.Count(), "zero dims count as one")
}

func TestLayoutMap(t *testing.T) {
	f := frame.Black(2, 2)
	f.SetRGB(0, 0, 1, 2, 3)
	f.SetRGB(0, 1, 4, 5, 6)
	l := Layout{Dim: Dim{X: 2, Y: 2, Z: 1}, Order: Serpentine{XFlipEveryRow: true}}
	out := l.Map(f, nil)
	require.Len(t, out, 12)
	assert.Equal(t, []byte{1, 2, 3}, out[0:3])
	// (0,1) is the last led of the reversed second row
	assert.Equal(t, []byte{4, 5, 6}, out[9:12])

	big := l.Map(frame.Solid(8, 8, 9, 9, 9), out)
	assert.Equal(t, byte(9), big[0])
}

func TestLEDSinkWritesStrip(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewLEDSink("strip", spitest.NewRecordRaw(&buf), Strip(4), 2500*physic.KiloHertz)
	require.NoError(t, err)
	assert.Equal(t, "strip", s.Name())

	before := buf.Len()
	require.NoError(t, s.Write(frame.Solid(4, 1, 255, 255, 255)))
	white := append([]byte(nil), buf.Bytes()[before:]...)
	assert.NotEmpty(t, white)

	mark := buf.Len()
	require.NoError(t, s.Write(frame.Black(4, 1)))
	assert.NotEqual(t, white, buf.Bytes()[mark:])
	assert.NoError(t, s.Close())
}

func TestSummary(t *testing.T) {
	f := frame.Black(2, 1)
	f.SetRGB(0, 0, 200, 100, 0)
	avg, first := Summary(f)
	assert.Equal(t, [3]float64{100, 50, 0}, avg)
	assert.Equal(t, [3]uint8{200, 100, 0}, first)

	s := NewSimSink("", zerolog.Nop(), 0)
	require.NoError(t, s.Write(f))
	assert.Equal(t, uint64(1), s.Count())
	assert.Equal(t, "sim", s.Name())
}

type gateSink struct {
	entered chan struct{}
	release chan struct{}
	fail    bool
	writes  int
	closed  bool
}

func (g *gateSink) Name() string { return "gate" }

func (g *gateSink) Write(*frame.Frame) error {
	g.writes++
	if g.writes == 1 {
		g.entered <- struct{}{}
		<-g.release
	}
	if g.fail {
		return errors.New("boom")
	}
	return nil
}

func (g *gateSink) Close() error {
	g.closed = true
	return nil
}

func TestFanoutDropsWhenSinkLags(t *testing.T) {
	g := &gateSink{entered: make(chan struct{}), release: make(chan struct{})}
	fo := NewFanout(zerolog.Nop(), 1, g)
	f := frame.Black(1, 1)

	fo.Publish(f)
	<-g.entered
	fo.Publish(f) // queued
	fo.Publish(f) // dropped
	fo.Publish(f) // dropped
	close(g.release)

	require.NoError(t, fo.Close())
	st := fo.Stats()
	require.Len(t, st, 1)
	assert.Equal(t, Stats{Sink: "gate", Sent: 2, Dropped: 2}, st[0])
	assert.True(t, g.closed)

	fo.Publish(f)
	assert.Equal(t, uint64(2), fo.Stats()[0].Sent, "closed fanout ignores frames")
}

func TestFanoutCountsFailures(t *testing.T) {
	g := &gateSink{entered: make(chan struct{}, 1), release: make(chan struct{}), fail: true}
	close(g.release)
	fo := NewFanout(zerolog.Nop(), 4, g)
	fo.Publish(frame.Black(1, 1))
	fo.Publish(nil)
	require.NoError(t, fo.Close())
	assert.Equal(t, uint64(1), fo.Stats()[0].Failed)
	assert.Equal(t, uint64(0), fo.Stats()[0].Sent)
}

func TestPreviewBroadcast(t *testing.T) {
	hub := NewPreviewHub("preview", time.Millisecond, zerolog.Nop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Write(frame.Solid(2, 1, 7, 8, 9)))
	var msg PreviewFrame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, uint64(1), msg.FrameID)
	assert.Equal(t, 2, msg.Width)
	assert.Equal(t, []byte{7, 8, 9, 7, 8, 9}, msg.RGB)

	require.NoError(t, hub.Close())
	assert.Equal(t, 0, hub.Clients())
}
