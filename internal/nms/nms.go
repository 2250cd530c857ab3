// Package nms implements greedy non-maximum suppression.
package nms

import (
	"fmt"
	"math"
	"sort"

	"github.com/kozaktomas/faceproc/internal/faceerr"
	"github.com/kozaktomas/faceproc/internal/geometry"
)

// Overlap selects how the overlap of two boxes is measured.
type Overlap int

const (
	// OverlapUnion is intersection over union.
	OverlapUnion Overlap = iota
	// OverlapMin is intersection over the smaller area, as used by the MTCNN cascade.
	OverlapMin
)

// Options configures Suppress.
type Options struct {
	// IoUThreshold suppresses a candidate whose overlap with a kept box is >= this value.
	IoUThreshold float64
	// FilterByScore drops candidates with score <= ScoreThreshold before suppression.
	// Without it scores only define the processing order.
	FilterByScore  bool
	ScoreThreshold float64
	Overlap        Overlap
}

// Validate checks the thresholds.
func (o Options) Validate() error {
	if math.IsNaN(o.IoUThreshold) || o.IoUThreshold <= 0 || o.IoUThreshold > 1 {
		return fmt.Errorf("IoU threshold must be in (0, 1], got %v: %w", o.IoUThreshold, faceerr.ErrConfiguration)
	}
	if o.FilterByScore && (math.IsNaN(o.ScoreThreshold) || o.ScoreThreshold < 0) {
		return fmt.Errorf("score threshold must be >= 0, got %v: %w", o.ScoreThreshold, faceerr.ErrConfiguration)
	}
	if o.Overlap != OverlapUnion && o.Overlap != OverlapMin {
		return fmt.Errorf("unknown overlap mode %d: %w", o.Overlap, faceerr.ErrConfiguration)
	}
	return nil
}

func (o Options) overlap(a, b geometry.Box) float64 {
	if o.Overlap == OverlapMin {
		return geometry.MinOverlap(a, b)
	}
	return geometry.IoU(a, b)
}

// scoreAbove orders scores descending with NaN below every number.
func scoreAbove(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	return math.IsNaN(b) || a > b
}

// Suppress returns the indices of the boxes to keep, highest score first.
// A NaN score ranks below every other score.
// Equal scores keep their input order, so the result only depends on the input.
func Suppress(boxes []geometry.Box, scores []float64, opts Options) ([]int, error) {
	if len(boxes) != len(scores) {
		return nil, fmt.Errorf("%d boxes and %d scores: %w", len(boxes), len(scores), faceerr.ErrDimensionMismatch)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	order := make([]int, 0, len(scores))
	for i, s := range scores {
		if opts.FilterByScore && !(s > opts.ScoreThreshold) {
			continue
		}
		order = append(order, i)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scoreAbove(scores[order[i]], scores[order[j]])
	})

	kept := make([]int, 0, len(order))
	for _, idx := range order {
		keep := true
		for _, k := range kept {
			if opts.overlap(boxes[idx], boxes[k]) >= opts.IoUThreshold {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, idx)
		}
	}

	return kept, nil
}
