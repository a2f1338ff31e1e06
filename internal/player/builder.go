package player

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/coreman2200/arcaluminis-show/internal/effect"
	"github.com/coreman2200/arcaluminis-show/internal/layer"
	"github.com/coreman2200/arcaluminis-show/internal/playlist"
	"github.com/coreman2200/arcaluminis-show/internal/registry"
	"github.com/coreman2200/arcaluminis-show/internal/source"
)

// BuildRequest asks for the layers of one clip.
type BuildRequest struct {
	Manager  *layer.Manager
	PlayerID string
	ClipID   string
	Override *playlist.Override
	Width    int
	Height   int
	FPS      float64
}

// Builder turns a clip id into a ready layer list. Every call must return
// fresh sources and effect instances.
type Builder interface {
	Build(ctx context.Context, req BuildRequest) ([]*layer.Layer, error)
}

// StackBuilder builds layers from a clip catalog and the source and effect
// registries.
type StackBuilder struct {
	Catalog registry.Catalog
	Sources *source.Registry
	Plugins *effect.Registry
	Log     zerolog.Logger
}

func (b *StackBuilder) Build(ctx context.Context, req BuildRequest) ([]*layer.Layer, error) {
	clip, err := b.Catalog.Clip(ctx, req.ClipID)
	if err != nil {
		return nil, err
	}
	clipEffects := clip.Effects
	if req.Override != nil && req.Override.Effects != nil {
		clipEffects = req.Override.Effects
	}
	log := b.Log.With().Str("player", req.PlayerID).Str("clip", clip.ID).Logger()
	canvas := source.Spec{Type: "black", Width: req.Width, Height: req.Height, FPS: req.FPS}

	layers := make([]*layer.Layer, 0, len(clip.Layers))
	for i, def := range clip.Layers {
		spec := source.Spec{
			Type:   def.SourceType,
			Path:   def.SourcePath,
			Width:  req.Width,
			Height: req.Height,
			FPS:    def.FPS,
			Params: def.Params,
		}
		if spec.FPS <= 0 {
			spec.FPS = req.FPS
		}
		if i == 0 && req.Override != nil && len(req.Override.Params) > 0 {
			merged := make(map[string]any, len(def.Params)+len(req.Override.Params))
			for k, v := range def.Params {
				merged[k] = v
			}
			for k, v := range req.Override.Params {
				merged[k] = v
			}
			spec.Params = merged
		}

		src, err := b.Sources.New(spec)
		if err != nil {
			log.Warn().Err(err).Int("layer", i).Msg("cannot create source; using black")
			src = nil
		}
		src = layer.Open(src, canvas, log)

		chain := effect.NewChain(b.Plugins, log.With().Int("layer", i).Logger())
		specs := def.Effects
		if i == 0 {
			specs = append(effect.CloneSpecs(clipEffects), def.Effects...)
		}
		if err := chain.AddSpecs(specs); err != nil {
			log.Warn().Err(err).Int("layer", i).Msg("effect list partially applied")
		}
		layers = append(layers, layer.New(req.Manager.NextID(), src, chain, layer.Options{
			ClipID:  clip.ID,
			Mode:    def.BlendMode,
			Opacity: def.OpacityValue(),
			Enabled: def.IsEnabled(),
		}))
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: %s has no layers", registry.ErrInvalidClip, clip.ID)
	}
	return layers, nil
}
