package nms

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/faceproc/internal/faceerr"
	"github.com/kozaktomas/faceproc/internal/geometry"
)

func TestSuppress_Scenario(t *testing.T) {
	boxes := []geometry.Box{
		{X1: 0, Y1: 0, X2: 10, Y2: 10},
		{X1: 1, Y1: 1, X2: 11, Y2: 11},
		{X1: 50, Y1: 50, X2: 60, Y2: 60},
	}
	scores := []float64{0.9, 0.8, 0.95}

	kept, err := Suppress(boxes, scores, Options{IoUThreshold: 0.5})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, kept)
}

func TestSuppress_LowOverlapKeepsBoth(t *testing.T) {
	boxes := []geometry.Box{
		{X1: 0, Y1: 0, X2: 10, Y2: 10},
		{X1: 5, Y1: 5, X2: 15, Y2: 15}, // IoU = 25/175
	}
	kept, err := Suppress(boxes, []float64{0.6, 0.7}, Options{IoUThreshold: 0.3})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, kept)
}

func TestSuppress_IdenticalBoxes(t *testing.T) {
	box := geometry.Box{X1: 1, Y1: 1, X2: 4, Y2: 4}

	kept, err := Suppress([]geometry.Box{box, box}, []float64{0.4, 0.8}, Options{IoUThreshold: 0.01})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, kept)

	// Equal scores keep the lower index.
	kept, err = Suppress([]geometry.Box{box, box, box}, []float64{0.5, 0.5, 0.5}, Options{IoUThreshold: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, kept)
}

func TestSuppress_StrictThreshold(t *testing.T) {
	// IoU exactly 0.5: suppressed, because kept boxes need IoU < threshold.
	boxes := []geometry.Box{
		{X1: 0, Y1: 0, X2: 10, Y2: 10},
		{X1: 0, Y1: 0, X2: 10, Y2: 5},
	}
	kept, err := Suppress(boxes, []float64{0.9, 0.8}, Options{IoUThreshold: 0.5})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, kept)

	kept, err = Suppress(boxes, []float64{0.9, 0.8}, Options{IoUThreshold: 0.51})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, kept)
}

func TestSuppress_ScoreFilter(t *testing.T) {
	boxes := []geometry.Box{
		{X1: 0, Y1: 0, X2: 1, Y2: 1},
		{X1: 5, Y1: 5, X2: 6, Y2: 6},
		{X1: 10, Y1: 10, X2: 11, Y2: 11},
	}
	scores := []float64{0.2, 0.5, 0.9}

	kept, err := Suppress(boxes, scores, Options{IoUThreshold: 0.5, FilterByScore: true, ScoreThreshold: 0.5})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, kept)

	// Without the flag the threshold is ignored.
	kept, err = Suppress(boxes, scores, Options{IoUThreshold: 0.5, ScoreThreshold: 0.5})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 0}, kept)
}

func TestSuppress_MinOverlap(t *testing.T) {
	boxes := []geometry.Box{
		{X1: 0, Y1: 0, X2: 20, Y2: 20},
		{X1: 5, Y1: 5, X2: 10, Y2: 10}, // inside: IoU 0.0625, min overlap 1
	}
	scores := []float64{0.9, 0.8}

	kept, err := Suppress(boxes, scores, Options{IoUThreshold: 0.5})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, kept)

	kept, err = Suppress(boxes, scores, Options{IoUThreshold: 0.5, Overlap: OverlapMin})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, kept)
}

func TestSuppress_NaNScoresRankLast(t *testing.T) {
	boxes := []geometry.Box{
		{X1: 0, Y1: 0, X2: 10, Y2: 10},
		{X1: 100, Y1: 0, X2: 110, Y2: 10},
		{X1: 0, Y1: 100, X2: 10, Y2: 110},
		{X1: 1, Y1: 1, X2: 11, Y2: 11},
		{X1: 200, Y1: 200, X2: 210, Y2: 210},
	}
	scores := []float64{math.NaN(), 0.3, math.NaN(), 0.9, math.Inf(-1)}

	kept, err := Suppress(boxes, scores, Options{IoUThreshold: 0.5})
	require.NoError(t, err)
	// box 0 overlaps box 3, which now outranks it
	assert.Equal(t, []int{3, 1, 4, 2}, kept)

	for i := 0; i < 5; i++ {
		again, err := Suppress(boxes, scores, Options{IoUThreshold: 0.5})
		require.NoError(t, err)
		assert.Equal(t, kept, again)
	}

	filtered, err := Suppress(boxes, scores, Options{IoUThreshold: 0.5, FilterByScore: true, ScoreThreshold: 0})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, filtered)
}

func TestSuppress_Empty(t *testing.T) {
	kept, err := Suppress(nil, nil, Options{IoUThreshold: 0.5})
	require.NoError(t, err)
	assert.Empty(t, kept)
}

func TestSuppress_Errors(t *testing.T) {
	box := geometry.Box{X2: 1, Y2: 1}

	_, err := Suppress([]geometry.Box{box}, []float64{0.1, 0.2}, Options{IoUThreshold: 0.5})
	assert.True(t, errors.Is(err, faceerr.ErrDimensionMismatch))

	for _, opts := range []Options{
		{IoUThreshold: 0},
		{IoUThreshold: 1.5},
		{IoUThreshold: math.NaN()},
		{IoUThreshold: 0.5, FilterByScore: true, ScoreThreshold: -1},
		{IoUThreshold: 0.5, Overlap: Overlap(7)},
	} {
		_, err := Suppress([]geometry.Box{box}, []float64{0.1}, opts)
		assert.True(t, errors.Is(err, faceerr.ErrConfiguration), "options %+v", opts)
	}
}

func TestSuppress_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	boxes := make([]geometry.Box, 200)
	scores := make([]float64, len(boxes))
	for i := range boxes {
		x, y := rng.Float64()*100, rng.Float64()*100
		w, h := 5+rng.Float64()*20, 5+rng.Float64()*20
		boxes[i] = geometry.Box{X1: x, Y1: y, X2: x + w, Y2: y + h}
		scores[i] = float64(rng.Intn(10)) / 10 // many ties
	}
	opts := Options{IoUThreshold: 0.3}

	kept, err := Suppress(boxes, scores, opts)
	require.NoError(t, err)

	subBoxes := make([]geometry.Box, len(kept))
	subScores := make([]float64, len(kept))
	for i, idx := range kept {
		subBoxes[i] = boxes[idx]
		subScores[i] = scores[idx]
	}
	again, err := Suppress(subBoxes, subScores, opts)
	require.NoError(t, err)

	require.Len(t, again, len(kept))
	for i, idx := range again {
		assert.Equal(t, i, idx)
	}

	// Same input, same output.
	repeat, err := Suppress(boxes, scores, opts)
	require.NoError(t, err)
	assert.Equal(t, kept, repeat)
}
