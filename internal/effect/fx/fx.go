// Package fx holds the built-in effect plugins.
package fx

import (
	"errors"

	"github.com/coreman2200/arcaluminis-show/internal/effect"
)

// RegisterAll adds every built-in plugin to reg.
func RegisterAll(reg *effect.Registry) error {
	var errs []error
	for _, d := range Descriptors() {
		errs = append(errs, reg.Register(d))
	}
	return errors.Join(errs...)
}

// Descriptors lists the built-ins in registration order.
func Descriptors() []effect.Descriptor {
	return []effect.Descriptor{
		{ID: "brightness", Name: "Brightness", Description: "scale all channels", Schema: brightnessSchema, New: func() effect.Plugin { return NewBrightness() }},
		{ID: "invert", Name: "Invert", Description: "negate all channels", Schema: nil, New: func() effect.Plugin { return NewInvert() }},
		{ID: "tint", Name: "Tint", Description: "mix toward a colour", Schema: tintSchema, New: func() effect.Plugin { return NewTint() }},
		{ID: "mirror", Name: "Mirror", Description: "reflect one half onto the other", Schema: mirrorSchema, New: func() effect.Plugin { return NewMirror() }},
		{ID: "tonemap", Name: "Tone map", Description: "filmic ACES curve with exposure and gamma", Schema: toneMapSchema, New: func() effect.Plugin { return NewToneMap() }},
		{ID: "limiter", Name: "Current limiter", Description: "per-LED white cap and global current budget", Schema: limiterSchema, New: func() effect.Plugin { return NewLimiter() }},
		{ID: "transport", Name: "Transport", Description: "trim, speed and loop for seekable sources", Schema: transportSchema, New: func() effect.Plugin { return NewTransport() }},
	}
}
