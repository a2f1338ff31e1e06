package blend

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects the per-pixel mixing function.
type Mode int

const (
	Normal Mode = iota
	Multiply
	Screen
	Add
	Subtract
	Overlay
	// Mask multiplies the base by the overlay's luminance.
	Mask
)

var ErrUnknownMode = errors.New("blend: unknown mode")

var modeNames = [...]string{
	Normal:   "normal",
	Multiply: "multiply",
	Screen:   "screen",
	Add:      "add",
	Subtract: "subtract",
	Overlay:  "overlay",
	Mask:     "mask",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

func (m Mode) Valid() bool { return m >= Normal && m <= Mask }

// ParseMode accepts the lower-case mode names; "" means normal.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return Normal, nil
	}
	for i, n := range modeNames {
		if n == name {
			return Mode(i), nil
		}
	}
	return Normal, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Modes lists every mode name in declaration order.
func Modes() []string {
	out := make([]string, len(modeNames))
	copy(out, modeNames[:])
	return out
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
