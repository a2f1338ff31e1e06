package source

import (
	"fmt"
	"image"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// Sequence plays a finite list of frames once and then reports end. Frames
// come from Path (a directory of stills or an animated GIF) or, without a
// path, a generated ramp of "frames" grey levels. It is seekable.
type Sequence struct {
	spec Spec

	mu     sync.Mutex
	frames []*frame.Frame
	delays []time.Duration
	pos    int
	ready  bool
}

func NewSequence(s Spec) *Sequence { return &Sequence{spec: s} }

// NewSequenceFrames wraps already decoded frames.
func NewSequenceFrames(frames []*frame.Frame, delay time.Duration) *Sequence {
	d := make([]time.Duration, len(frames))
	for i := range d {
		d[i] = delay
	}
	return &Sequence{frames: frames, delays: d, ready: true}
}

func (q *Sequence) Name() string {
	if q.spec.Path != "" {
		return "sequence:" + filepath.Base(q.spec.Path)
	}
	return "sequence"
}

func (q *Sequence) Initialize() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ready {
		return nil
	}
	var (
		frames []*frame.Frame
		delays []time.Duration
		err    error
	)
	switch {
	case q.spec.Path == "":
		frames = Ramp(q.spec.Int("frames", 30), q.spec.Width, q.spec.Height)
	case strings.EqualFold(filepath.Ext(q.spec.Path), ".gif"):
		frames, delays, err = LoadGIF(q.spec.Path)
	default:
		frames, err = LoadImageDir(q.spec.Path)
	}
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return fmt.Errorf("source: %s has no frames", q.Name())
	}
	if q.spec.Width > 0 && q.spec.Height > 0 {
		for i, f := range frames {
			frames[i] = frame.Resize(f, q.spec.Width, q.spec.Height)
		}
	}
	if delays == nil {
		delays = make([]time.Duration, len(frames))
		for i := range delays {
			delays[i] = q.spec.interval()
		}
	}
	q.frames, q.delays, q.pos, q.ready = frames, delays, 0, true
	return nil
}

func (q *Sequence) NextFrame() (*frame.Frame, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.ready || q.pos >= len(q.frames) {
		return nil, 0
	}
	i := q.pos
	q.pos++
	return q.frames[i], q.delays[i]
}

func (q *Sequence) Reset() {
	q.mu.Lock()
	q.pos = 0
	q.mu.Unlock()
}

func (q *Sequence) Cleanup() {
	q.mu.Lock()
	q.frames, q.delays, q.ready = nil, nil, false
	q.mu.Unlock()
}

func (q *Sequence) FrameCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Position is the index of the frame NextFrame will return.
func (q *Sequence) Position() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pos
}

// Seek accepts 0..FrameCount; FrameCount puts the source at its end.
func (q *Sequence) Seek(i int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i > len(q.frames) {
		return false
	}
	q.pos = i
	return true
}

// Ramp generates n solid grey frames from black to white.
func Ramp(n, w, h int) []*frame.Frame {
	if n <= 0 {
		return nil
	}
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	out := make([]*frame.Frame, n)
	for i := range out {
		v := uint8(255)
		if n > 1 {
			v = uint8((i*255 + (n-1)/2) / (n - 1))
		}
		out[i] = frame.Solid(w, h, v, v, v)
	}
	return out
}

// LoadImageDir decodes every still in dir in file-name order.
func LoadImageDir(dir string) ([]*frame.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	out := make([]*frame.Frame, 0, len(names))
	for _, n := range names {
		f, err := loadImage(filepath.Join(dir, n))
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func loadImage(path string) (*frame.Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	img, _, err := image.Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("source: decode %s: %w", path, err)
	}
	return frame.FromImage(img), nil
}

// LoadGIF decodes an animated GIF, compositing each frame over the previous
// one, and returns per-frame delays.
func LoadGIF(path string) ([]*frame.Frame, []time.Duration, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer fh.Close()
	g, err := gif.DecodeAll(fh)
	if err != nil {
		return nil, nil, fmt.Errorf("source: decode %s: %w", path, err)
	}
	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() && len(g.Image) > 0 {
		bounds = g.Image[0].Bounds()
	}
	canvas := image.NewNRGBA(bounds)
	frames := make([]*frame.Frame, 0, len(g.Image))
	delays := make([]time.Duration, 0, len(g.Image))
	for i, pal := range g.Image {
		xdraw.Draw(canvas, pal.Bounds(), pal, pal.Bounds().Min, xdraw.Over)
		frames = append(frames, frame.FromImage(canvas))
		d := 100 * time.Millisecond
		if i < len(g.Delay) && g.Delay[i] > 0 {
			d = time.Duration(g.Delay[i]) * 10 * time.Millisecond
		}
		delays = append(delays, d)
	}
	return frames, delays, nil
}
