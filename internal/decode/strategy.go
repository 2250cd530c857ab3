// Package decode turns raw per-location detector outputs into boxes.
// Decoding is pure arithmetic: nothing is clipped or filtered across locations.
package decode

import (
	"fmt"
	"math"

	"github.com/kozaktomas/faceproc/internal/faceerr"
	"github.com/kozaktomas/faceproc/internal/geometry"
)

// Kind selects the decode rule of a detector.
type Kind string

const (
	// KindGridAnchor is the tiny-YOLOv2 grid cell / anchor decode.
	KindGridAnchor Kind = "grid_anchor"
	// KindCenterSize is the SSD center/size exponential decode against reference boxes.
	KindCenterSize Kind = "center_size"
)

// GridParams configures the grid/anchor decode.
type GridParams struct {
	// Anchors are the (width, height) priors in grid cell units, one per box slot.
	Anchors []geometry.Point
	// BoxSize is the number of values per anchor: 5 (tx, ty, tw, th, to),
	// or 6 when a class logit follows the objectness score.
	BoxSize int
}

// NumBoxes returns the number of anchors per cell.
func (p GridParams) NumBoxes() int {
	return len(p.Anchors)
}

// CenterSizeParams configures the center/size decode.
type CenterSizeParams struct {
	// References are the reference box corners, one per output location.
	References []geometry.Box
}

// Strategy is a tagged variant: exactly one of Grid and CenterSize is set, matching Kind.
type Strategy struct {
	Kind       Kind
	Grid       *GridParams
	CenterSize *CenterSizeParams
}

// GridStrategy builds a grid/anchor strategy.
func GridStrategy(anchors []geometry.Point, boxSize int) Strategy {
	return Strategy{
		Kind: KindGridAnchor,
		Grid: &GridParams{Anchors: append([]geometry.Point(nil), anchors...), BoxSize: boxSize},
	}
}

// CenterSizeStrategy builds a center/size strategy.
func CenterSizeStrategy(references []geometry.Box) Strategy {
	return Strategy{
		Kind:       KindCenterSize,
		CenterSize: &CenterSizeParams{References: append([]geometry.Box(nil), references...)},
	}
}

// Validate checks that the strategy carries usable parameters for its kind.
func (s Strategy) Validate() error {
	switch s.Kind {
	case KindGridAnchor:
		if s.Grid == nil {
			return fmt.Errorf("grid strategy without grid params: %w", faceerr.ErrConfiguration)
		}
		if len(s.Grid.Anchors) == 0 {
			return fmt.Errorf("grid strategy needs at least one anchor: %w", faceerr.ErrConfiguration)
		}
		for i, a := range s.Grid.Anchors {
			if !(a.X > 0) || !(a.Y > 0) || math.IsInf(a.X, 0) || math.IsInf(a.Y, 0) {
				return fmt.Errorf("anchor %d has non-positive size %vx%v: %w", i, a.X, a.Y, faceerr.ErrConfiguration)
			}
		}
		if s.Grid.BoxSize != 5 && s.Grid.BoxSize != 6 {
			return fmt.Errorf("grid box size must be 5 or 6, got %d: %w", s.Grid.BoxSize, faceerr.ErrConfiguration)
		}
	case KindCenterSize:
		if s.CenterSize == nil {
			return fmt.Errorf("center/size strategy without reference boxes: %w", faceerr.ErrConfiguration)
		}
		if len(s.CenterSize.References) == 0 {
			return fmt.Errorf("center/size strategy needs reference boxes: %w", faceerr.ErrConfiguration)
		}
	default:
		return fmt.Errorf("unknown decode kind %q: %w", s.Kind, faceerr.ErrConfiguration)
	}
	return nil
}

// Sigmoid is the logistic function. Sigmoid(0) is exactly 0.5.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
