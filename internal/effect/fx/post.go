package fx

import (
	"math"

	"github.com/coreman2200/arcaluminis-show/internal/effect"
	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

var toneMapSchema = effect.Schema{
	{Name: "exposure_ev", Kind: effect.Float, Min: -8, Max: 8, Default: 0.0},
	{Name: "gamma", Kind: effect.Float, Min: 0.1, Max: 5, Default: 2.2},
}

// ToneMap is the filmic/ACES curve with exposure in EV and output gamma.
type ToneMap struct{ *effect.Params }

func NewToneMap() *ToneMap { return &ToneMap{Params: effect.NewParams(toneMapSchema)} }

func (t *ToneMap) ID() string { return "tonemap" }

func (t *ToneMap) Process(f *frame.Frame, _ effect.Context) (*frame.Frame, error) {
	exposure := float32(math.Pow(2.0, t.Float("exposure_ev")))
	gamma := t.Float("gamma")
	ig := 1.0 / gamma

	out := f.Clone()
	ch := f.Channels
	for p := 0; p < len(f.Pix); p += ch {
		for c := 0; c < 3; c++ {
			v := acesApprox(float32(f.Pix[p+c]) / 255 * exposure)
			if gamma != 1.0 {
				v = powf(v, ig)
			}
			out.Pix[p+c] = to8(v)
		}
	}
	return out, nil
}

var limiterSchema = effect.Schema{
	{Name: "white_cap", Kind: effect.Float, Min: 0, Max: 3, Default: 3.0},
	{Name: "chan_ma", Kind: effect.Float, Min: 0, Max: 100, Default: 20.0},
	{Name: "budget_ma", Kind: effect.Float, Min: 0, Max: 1e6, Default: 0.0},
	{Name: "knee", Kind: effect.Float, Min: 0, Max: 1, Default: 0.9},
}

// Limiter applies two stages:
// 1) per-LED white cap: scales (R,G,B) so R+G+B <= white_cap (3.0 = no cap)
// 2) global current budget: estimates current and scales the frame to stay
// under budget_ma (0 disables), starting softly at knee*budget.
type Limiter struct{ *effect.Params }

func NewLimiter() *Limiter { return &Limiter{Params: effect.NewParams(limiterSchema)} }

func (l *Limiter) ID() string { return "limiter" }

func (l *Limiter) Process(f *frame.Frame, _ effect.Context) (*frame.Frame, error) {
	whiteCap := float32(l.Float("white_cap"))
	chanmA := l.Float("chan_ma")
	budget := l.Float("budget_ma")
	knee := l.Float("knee")
	if knee <= 0 || knee >= 1 {
		knee = 0.9
	}

	ch := f.Channels
	n := f.Pixels()
	buf := make([]float32, n*3)
	for i := 0; i < n; i++ {
		for c := 0; c < 3; c++ {
			buf[i*3+c] = float32(f.Pix[i*ch+c]) / 255
		}
	}

	// 1) per-LED white cap
	if whiteCap > 0 {
		for i := 0; i < len(buf); i += 3 {
			s := buf[i] + buf[i+1] + buf[i+2]
			if s > whiteCap {
				k := whiteCap / s
				buf[i] *= k
				buf[i+1] *= k
				buf[i+2] *= k
			}
		}
	}

	// 2) global budget
	if budget > 0 && chanmA > 0 {
		var total float64
		for _, v := range buf {
			total += float64(v) * chanmA
		}
		if total > 0 {
			ratio := total / budget
			switch {
			case ratio > 1:
				scaleAll(buf, float32(budget/total))
			case ratio > knee:
				// map ratio in [knee,1] to scale in [1, budget/total]
				minS := budget / total
				t := (ratio - knee) / (1 - knee)
				scaleAll(buf, float32(1-t*(1-minS)))
			}
		}
	}

	out := f.Clone()
	for i := 0; i < n; i++ {
		for c := 0; c < 3; c++ {
			// truncate so the estimate never rounds back over budget
			out.Pix[i*ch+c] = uint8(clamp01(buf[i*3+c]) * 255)
		}
	}
	return out, nil
}

func scaleAll(buf []float32, s float32) {
	if s >= 1 {
		return
	}
	for i := range buf {
		buf[i] *= s
	}
}

func clamp01(x float32) float32 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func to8(v float32) uint8 { return uint8(clamp01(v)*255 + 0.5) }

func powf(x float32, p float64) float32 {
	return float32(math.Pow(float64(x), p))
}

// Approximate ACES filmic curve (Narkowicz 2015).
func acesApprox(x float32) float32 {
	a := float32(2.51)
	b := float32(0.03)
	c := float32(2.43)
	d := float32(0.59)
	e := float32(0.14)
	return clamp01((x * (a*x + b)) / (x*(c*x+d) + e))
}
