package source

import (
	"fmt"
	"os"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

// Script runs a Lua generator. The script defines
//
//	function render(t, w, h) ... end
//
// and paints with set_pixel(x, y, r, g, b), channels in 0..1. The code comes
// from Path or the "code" parameter. A positive "duration_s" makes the source
// end after that many seconds of frames; otherwise it runs forever.
type Script struct {
	spec  Spec
	w, h  int
	delay time.Duration

	mu     sync.Mutex
	L      *lua.LState
	render lua.LValue
	cur    *frame.Frame
	n      int
	limit  int
}

func NewScript(s Spec) *Script {
	w, h := s.size()
	sc := &Script{spec: s, w: w, h: h, delay: s.interval()}
	if d := s.Float("duration_s", 0); d > 0 {
		sc.limit = int(d/sc.delay.Seconds() + 0.5)
	}
	return sc
}

func (s *Script) Name() string { return "script" }

func (s *Script) Initialize() error {
	code := s.spec.String("code", "")
	if s.spec.Path != "" {
		b, err := os.ReadFile(s.spec.Path)
		if err != nil {
			return fmt.Errorf("source: read script: %w", err)
		}
		code = string(b)
	}
	if code == "" {
		return fmt.Errorf("source: script has no code")
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.MathLibName, lua.OpenMath},
		{lua.StringLibName, lua.OpenString},
		{lua.TabLibName, lua.OpenTable},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.fn), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			L.Close()
			return fmt.Errorf("source: lua %s: %w", lib.name, err)
		}
	}
	L.SetGlobal("set_pixel", L.NewFunction(s.setPixel))
	L.SetGlobal("WIDTH", lua.LNumber(s.w))
	L.SetGlobal("HEIGHT", lua.LNumber(s.h))
	if err := L.DoString(code); err != nil {
		L.Close()
		return fmt.Errorf("source: lua: %w", err)
	}
	fn := L.GetGlobal("render")
	if fn.Type() != lua.LTFunction {
		L.Close()
		return fmt.Errorf("source: script does not define render(t, w, h)")
	}

	s.mu.Lock()
	s.L, s.render, s.n = L, fn, 0
	s.mu.Unlock()
	return nil
}

func (s *Script) setPixel(L *lua.LState) int {
	x, y := L.CheckInt(1), L.CheckInt(2)
	r, g, b := float64(L.CheckNumber(3)), float64(L.CheckNumber(4)), float64(L.CheckNumber(5))
	if s.cur == nil || x < 0 || y < 0 || x >= s.w || y >= s.h {
		return 0
	}
	s.cur.SetRGB(x, y, unit8(r), unit8(g), unit8(b))
	return 0
}

// NextFrame calls render once. A Lua error ends the source.
func (s *Script) NextFrame() (*frame.Frame, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L == nil || (s.limit > 0 && s.n >= s.limit) {
		return nil, 0
	}
	t := float64(s.n) * s.delay.Seconds()
	s.cur = frame.Black(s.w, s.h)
	err := s.L.CallByParam(lua.P{Fn: s.render, NRet: 0, Protect: true},
		lua.LNumber(t), lua.LNumber(s.w), lua.LNumber(s.h))
	f := s.cur
	s.cur = nil
	if err != nil {
		return nil, 0
	}
	s.n++
	return f, s.delay
}

func (s *Script) Reset() {
	s.mu.Lock()
	s.n = 0
	s.mu.Unlock()
}

func (s *Script) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L != nil {
		s.L.Close()
		s.L = nil
	}
}
