package detect

import (
	"fmt"

	"github.com/kozaktomas/faceproc/internal/config"
	"github.com/kozaktomas/faceproc/internal/decode"
	"github.com/kozaktomas/faceproc/internal/faceerr"
	"github.com/kozaktomas/faceproc/internal/geometry"
)

// FromPreset builds a pipeline configuration from a detector preset.
// Center/size presets take their reference boxes from references, grid presets ignore them.
func FromPreset(preset config.DetectorPreset, references []geometry.Box) (Config, error) {
	cfg := Config{
		ScoreThreshold: preset.ScoreThreshold,
		IoUThreshold:   preset.IoUThreshold,
		InputSize:      preset.InputSize,
		MaxDetections:  preset.MaxDetections,
	}

	switch decode.Kind(preset.Kind) {
	case decode.KindGridAnchor:
		anchors := make([]geometry.Point, len(preset.Anchors))
		for i, a := range preset.Anchors {
			if len(a) != 2 {
				return Config{}, fmt.Errorf("anchor %d must be [width, height], got %v: %w", i, a, faceerr.ErrConfiguration)
			}
			anchors[i] = geometry.Point{X: a[0], Y: a[1]}
		}
		cfg.Strategy = decode.GridStrategy(anchors, preset.BoxSize)
	case decode.KindCenterSize:
		cfg.Strategy = decode.CenterSizeStrategy(references)
	default:
		return Config{}, fmt.Errorf("unknown detector kind %q: %w", preset.Kind, faceerr.ErrConfiguration)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
