package effect

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

// addPlugin adds a constant to every byte.
type addPlugin struct {
	*Params
	calls int
}

func (p *addPlugin) ID() string { return "add" }
func (p *addPlugin) Process(f *frame.Frame, _ Context) (*frame.Frame, error) {
	p.calls++
	out := f.Clone()
	n := byte(p.Int("n"))
	for i := range out.Pix {
		out.Pix[i] += n
	}
	return out, nil
}

// failPlugin fails in the way its mode says.
type failPlugin struct{ *Params }

func (p *failPlugin) ID() string { return "fail" }
func (p *failPlugin) Process(f *frame.Frame, _ Context) (*frame.Frame, error) {
	switch p.String("mode") {
	case "nil":
		return nil, nil
	case "panic":
		panic("boom")
	default:
		return nil, errors.New("broken")
	}
}

type timelinePlugin struct {
	*Params
	bound Timeline
}

func (p *timelinePlugin) ID() string              { return "tl" }
func (p *timelinePlugin) BindTimeline(t Timeline) { p.bound = t }
func (p *timelinePlugin) Process(f *frame.Frame, _ Context) (*frame.Frame, error) {
	return f, nil
}

type fakeTimeline struct{ pos int }

func (t *fakeTimeline) FrameCount() int { return 10 }
func (t *fakeTimeline) Position() int   { return t.pos }
func (t *fakeTimeline) Seek(i int) bool { t.pos = i; return true }

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register(Descriptor{
		ID:     "add",
		Schema: Schema{{Name: "n", Kind: Int, Min: 0, Max: 255, Default: 1}},
		New:    func() Plugin { return &addPlugin{Params: NewParams(Schema{{Name: "n", Kind: Int, Min: 0, Max: 255, Default: 1}})} },
	}))
	failSchema := Schema{{Name: "mode", Kind: Enum, Options: []string{"error", "nil", "panic"}, Default: "error"}}
	require.NoError(t, reg.Register(Descriptor{
		ID:     "fail",
		Schema: failSchema,
		New:    func() Plugin { return &failPlugin{Params: NewParams(failSchema)} },
	}))
	require.NoError(t, reg.Register(Descriptor{
		ID:  "tl",
		New: func() Plugin { return &timelinePlugin{Params: NewParams(nil)} },
	}))
	return reg
}

func newChain(t *testing.T) *Chain {
	return NewChain(testRegistry(t), zerolog.Nop())
}

func TestRegistryRejectsDuplicatesAndUnknown(t *testing.T) {
	reg := testRegistry(t)
	err := reg.Register(Descriptor{ID: "add", New: func() Plugin { return nil }})
	assert.ErrorIs(t, err, ErrDuplicatePlugin)

	_, err = reg.New("nope", nil)
	assert.ErrorIs(t, err, ErrUnknownPlugin)

	_, err = reg.New("add", map[string]any{"n": 999})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	ids := []string{}
	for _, d := range reg.List() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"add", "fail", "tl"}, ids)
}

func TestRegistryReturnsFreshInstances(t *testing.T) {
	reg := testRegistry(t)
	a, err := reg.New("add", nil)
	require.NoError(t, err)
	b, err := reg.New("add", nil)
	require.NoError(t, err)
	require.NoError(t, a.UpdateParameter("n", 9))
	assert.Equal(t, 9, a.Parameters()["n"])
	assert.Equal(t, 1, b.Parameters()["n"])
}

func TestApplyRunsInOrder(t *testing.T) {
	c := newChain(t)
	_, err := c.Add("add", map[string]any{"n": 2})
	require.NoError(t, err)
	_, err = c.Add("add", map[string]any{"n": 3})
	require.NoError(t, err)

	in := frame.Solid(2, 2, 10, 20, 30)
	out := c.Apply(in, Context{})
	assert.Equal(t, byte(15), out.Pix[0])
	assert.Equal(t, byte(10), in.Pix[0], "input must not be modified")
}

func TestDisabledEntryIsSkipped(t *testing.T) {
	c := newChain(t)
	_, err := c.Add("add", map[string]any{"n": 5})
	require.NoError(t, err)
	in := frame.Solid(2, 2, 1, 1, 1)

	want := c.Apply(in, Context{})

	require.NoError(t, c.SetEnabled(0, false))
	assert.Same(t, in, c.Apply(in, Context{}))

	require.NoError(t, c.SetEnabled(0, true))
	assert.True(t, want.Equal(c.Apply(in, Context{})), "re-enabling must reproduce the output")
}

func TestFailingEffectsDoNotAbortChain(t *testing.T) {
	for _, mode := range []string{"error", "nil", "panic"} {
		t.Run(mode, func(t *testing.T) {
			c := newChain(t)
			_, err := c.Add("add", map[string]any{"n": 1})
			require.NoError(t, err)
			_, err = c.Add("fail", map[string]any{"mode": mode})
			require.NoError(t, err)
			_, err = c.Add("add", map[string]any{"n": 1})
			require.NoError(t, err)

			out := c.Apply(frame.Solid(1, 1, 0, 0, 0), Context{})
			assert.Equal(t, []byte{2, 2, 2}, out.Pix)
			// and again next tick; nothing is auto-disabled
			out = c.Apply(frame.Solid(1, 1, 0, 0, 0), Context{})
			assert.Equal(t, []byte{2, 2, 2}, out.Pix)
			assert.True(t, c.Entries()[1].Enabled)
		})
	}
}

func TestInsertRemoveMove(t *testing.T) {
	c := newChain(t)
	require.NoError(t, c.AddSpecs([]Spec{
		{PluginID: "add", Params: map[string]any{"n": 1}},
		{PluginID: "add", Params: map[string]any{"n": 2}},
	}))
	require.NoError(t, c.Insert(0, "add", map[string]any{"n": 3}))
	assert.Equal(t, []int{3, 1, 2}, ns(c))

	require.NoError(t, c.Move(0, 2))
	assert.Equal(t, []int{1, 2, 3}, ns(c))
	require.NoError(t, c.Move(2, 0))
	assert.Equal(t, []int{3, 1, 2}, ns(c))

	require.NoError(t, c.Remove(1))
	assert.Equal(t, []int{3, 2}, ns(c))

	assert.ErrorIs(t, c.Remove(5), ErrIndexOutOfRange)
	assert.ErrorIs(t, c.Insert(4, "add", nil), ErrIndexOutOfRange)
	assert.ErrorIs(t, c.Move(0, 2), ErrIndexOutOfRange)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func ns(c *Chain) []int {
	out := []int{}
	for _, e := range c.Entries() {
		out = append(out, e.Parameters["n"].(int))
	}
	return out
}

func TestUpdateParameterValidates(t *testing.T) {
	c := newChain(t)
	_, err := c.Add("add", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, c.UpdateParameter(0, "n", "lots"), ErrInvalidParameter)
	assert.ErrorIs(t, c.UpdateParameter(0, "missing", 1), ErrInvalidParameter)
	assert.ErrorIs(t, c.UpdateParameter(3, "n", 1), ErrIndexOutOfRange)
	require.NoError(t, c.UpdateParameter(0, "n", 7.0))
	assert.Equal(t, 7, c.Entries()[0].Parameters["n"])

	assert.Equal(t, 1, c.UpdateByPlugin("add", "n", 4))
	assert.Equal(t, 0, c.UpdateByPlugin("fail", "mode", "nil"))
}

func TestSnapshotRebuildsChain(t *testing.T) {
	c := newChain(t)
	require.NoError(t, c.AddSpecs([]Spec{
		{PluginID: "add", Params: map[string]any{"n": 4}},
		{PluginID: "add", Params: map[string]any{"n": 6}, Enabled: BoolPtr(false)},
	}))
	snap := c.Snapshot()
	require.Len(t, snap, 2)
	assert.False(t, snap[1].IsEnabled())

	d := newChain(t)
	require.NoError(t, d.AddSpecs(snap))
	assert.Equal(t, c.Entries(), d.Entries())
}

func TestBindReachesTimelineAwarePlugins(t *testing.T) {
	c := newChain(t)
	_, err := c.Add("tl", nil)
	require.NoError(t, err)

	tl := &fakeTimeline{}
	c.Bind(tl)
	_, err = c.Add("tl", nil)
	require.NoError(t, err)

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.slots {
		assert.Same(t, tl, s.plugin.(*timelinePlugin).bound)
	}
}
