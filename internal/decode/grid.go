package decode

import (
	"fmt"
	"math"

	"github.com/kozaktomas/faceproc/internal/faceerr"
	"github.com/kozaktomas/faceproc/internal/geometry"
	"github.com/kozaktomas/faceproc/internal/tensor"
)

// Candidate is one decoded (cell, anchor) box with its objectness score.
// Boxes are relative to the unpadded input, so 0-1 covers the image.
type Candidate struct {
	Box    geometry.Box
	Score  float64
	Row    int
	Col    int
	Anchor int
}

// gridCells returns the grid size of a grid output tensor.
// Accepted layouts: [cells, cells, boxes*size], [1, cells, cells, boxes*size]
// and [cells, cells, boxes, size].
func gridCells(t tensor.Tensor, p GridParams) (int, error) {
	numBoxes := p.NumBoxes()
	shape := t.Shape

	switch {
	case len(shape) == 4 && shape[2] == numBoxes && shape[3] == p.BoxSize:
		shape = []int{shape[0], shape[1], numBoxes * p.BoxSize}
	case len(shape) == 4 && shape[0] == 1:
		shape = shape[1:]
	}

	if len(shape) != 3 {
		return 0, fmt.Errorf("grid output must be [cells, cells, %d], got %v: %w", numBoxes*p.BoxSize, t.Shape, faceerr.ErrDimensionMismatch)
	}
	if shape[0] != shape[1] {
		return 0, fmt.Errorf("grid output is not square: %v: %w", t.Shape, faceerr.ErrDimensionMismatch)
	}
	if shape[2] != numBoxes*p.BoxSize {
		return 0, fmt.Errorf("grid output has %d values per cell, want %d anchors x %d: %w",
			shape[2], numBoxes, p.BoxSize, faceerr.ErrDimensionMismatch)
	}
	if n, err := tensor.NumElements(shape); err != nil || n != len(t.Data) {
		return 0, fmt.Errorf("grid output shape %v does not match %d values: %w", t.Shape, len(t.Data), faceerr.ErrDimensionMismatch)
	}
	return shape[0], nil
}

// DecodeGrid decodes a tiny-YOLOv2 style output.
//
// For cell (row, col) and anchor a with raw values (tx, ty, tw, th, to):
//
//	score  = sigmoid(to)
//	cx     = (col + sigmoid(tx)) / cells * padding.X
//	cy     = (row + sigmoid(ty)) / cells * padding.Y
//	width  = exp(tw) * anchor.X / cells * padding.X
//	height = exp(th) * anchor.Y / cells * padding.Y
//
// A candidate is emitted when score > threshold. A threshold of 0 or less keeps every candidate.
// Candidates come out in row, col, anchor order.
func DecodeGrid(t tensor.Tensor, p GridParams, padding geometry.Point, threshold float64) ([]Candidate, error) {
	if err := (Strategy{Kind: KindGridAnchor, Grid: &p}).Validate(); err != nil {
		return nil, err
	}
	cells, err := gridCells(t, p)
	if err != nil {
		return nil, err
	}

	numBoxes := p.NumBoxes()
	n := float64(cells)
	var results []Candidate

	for row := 0; row < cells; row++ {
		for col := 0; col < cells; col++ {
			for anchor := 0; anchor < numBoxes; anchor++ {
				offset := ((row*cells+col)*numBoxes + anchor) * p.BoxSize
				v := t.Data[offset : offset+p.BoxSize]

				score := Sigmoid(float64(v[4]))
				if threshold > 0 && !(score > threshold) {
					continue
				}

				ctX := ((float64(col) + Sigmoid(float64(v[0]))) / n) * padding.X
				ctY := ((float64(row) + Sigmoid(float64(v[1]))) / n) * padding.Y
				width := ((math.Exp(float64(v[2])) * p.Anchors[anchor].X) / n) * padding.X
				height := ((math.Exp(float64(v[3])) * p.Anchors[anchor].Y) / n) * padding.Y

				x := ctX - width/2
				y := ctY - height/2
				results = append(results, Candidate{
					Box:    geometry.Box{X1: x, Y1: y, X2: x + width, Y2: y + height},
					Score:  score,
					Row:    row,
					Col:    col,
					Anchor: anchor,
				})
			}
		}
	}

	return results, nil
}
