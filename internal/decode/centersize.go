package decode

import (
	"fmt"
	"math"

	"github.com/kozaktomas/faceproc/internal/faceerr"
	"github.com/kozaktomas/faceproc/internal/geometry"
	"github.com/kozaktomas/faceproc/internal/tensor"
)

// Scale divisors of the SSD box regression. They match the trained weights.
const (
	centerScale = 10
	sizeScale   = 5
)

// Offset is a raw SSD box regression (ox, oy, ow, oh).
type Offset [4]float64

// DecodeCenterSize applies an offset to a reference box.
// The arithmetic follows the order of the reference graph, do not simplify it.
func DecodeCenterSize(ref geometry.Box, o Offset) geometry.Box {
	refW := ref.X2 - ref.X1
	refH := ref.Y2 - ref.Y1
	refCx := ref.X1 + refW/2
	refCy := ref.Y1 + refH/2

	halfW := (math.Exp(o[2]/sizeScale) * refW) / 2
	cx := math.Exp(o[0]/centerScale)*refW + refCx

	halfH := (math.Exp(o[3]/sizeScale) * refH) / 2
	cy := math.Exp(o[1]/centerScale)*refH + refCy

	return geometry.Box{
		X1: cx - halfW,
		Y1: cy - halfH,
		X2: cx + halfW,
		Y2: cy + halfH,
	}
}

// DecodeCenterSizeAll decodes an [N, 4] offsets tensor against N reference boxes.
// A leading batch dimension of 1 is accepted.
func DecodeCenterSizeAll(p CenterSizeParams, offsets tensor.Tensor) ([]geometry.Box, error) {
	if err := (Strategy{Kind: KindCenterSize, CenterSize: &p}).Validate(); err != nil {
		return nil, err
	}
	flat, err := offsets.Flatten2D()
	if err != nil {
		return nil, err
	}
	if flat.Shape[1] != 4 {
		return nil, fmt.Errorf("box offsets must have 4 values per location, got shape %v: %w", offsets.Shape, faceerr.ErrDimensionMismatch)
	}
	if flat.Shape[0] != len(p.References) {
		return nil, fmt.Errorf("%d box offsets for %d reference boxes: %w", flat.Shape[0], len(p.References), faceerr.ErrDimensionMismatch)
	}

	rows, err := flat.Rows()
	if err != nil {
		return nil, err
	}
	boxes := make([]geometry.Box, len(rows))
	for i, r := range rows {
		boxes[i] = DecodeCenterSize(p.References[i], Offset{float64(r[0]), float64(r[1]), float64(r[2]), float64(r[3])})
	}
	return boxes, nil
}
