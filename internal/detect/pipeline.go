package detect

import (
	"fmt"

	"github.com/kozaktomas/faceproc/internal/decode"
	"github.com/kozaktomas/faceproc/internal/faceerr"
	"github.com/kozaktomas/faceproc/internal/geometry"
	"github.com/kozaktomas/faceproc/internal/nms"
	"github.com/kozaktomas/faceproc/internal/tensor"
)

// Pipeline runs decode, score filtering, suppression and rescaling for one detector.
// It holds no per-call state and is safe for concurrent use.
type Pipeline struct {
	cfg Config
}

// NewPipeline validates the configuration and returns a pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg}, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// WithScoreThreshold returns a pipeline sharing the configuration with another score threshold.
func (p *Pipeline) WithScoreThreshold(threshold float64) (*Pipeline, error) {
	cfg := p.cfg
	cfg.ScoreThreshold = threshold
	return NewPipeline(cfg)
}

// scored is a relative box and its score before suppression.
type scored struct {
	box   geometry.Box
	score float64
}

// LocateFaces converts raw network outputs for one image into detections, best score first.
//
// For the grid strategy boxes is the grid output and scores is ignored.
// For the center/size strategy boxes holds [N, 4] offsets and scores holds [N, classes] logits;
// the face score is the sigmoid of the last class column.
// An empty result is not an error.
func (p *Pipeline) LocateFaces(boxes, scores tensor.Tensor, dims geometry.Dimensions) ([]Detection, error) {
	if !dims.Valid() {
		return nil, fmt.Errorf("image dimensions must be positive, got %dx%d: %w", dims.Width, dims.Height, faceerr.ErrConfiguration)
	}

	padding := p.cfg.Padding
	if padding == (geometry.Point{}) {
		padding = RelativePadding(dims.Width, dims.Height)
	}

	var candidates []scored
	var err error
	switch p.cfg.Strategy.Kind {
	case decode.KindGridAnchor:
		candidates, err = p.gridCandidates(boxes, padding)
	case decode.KindCenterSize:
		candidates, err = p.centerSizeCandidates(boxes, scores, padding)
	default:
		err = fmt.Errorf("unknown decode kind %q: %w", p.cfg.Strategy.Kind, faceerr.ErrConfiguration)
	}
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []Detection{}, nil
	}

	size := float64(p.cfg.InputSize)
	nmsBoxes := make([]geometry.Box, len(candidates))
	nmsScores := make([]float64, len(candidates))
	for i, c := range candidates {
		nmsBoxes[i] = c.box.Rescale(size, size)
		nmsScores[i] = c.score
	}

	kept, err := nms.Suppress(nmsBoxes, nmsScores, nms.Options{IoUThreshold: p.cfg.IoUThreshold})
	if err != nil {
		return nil, err
	}
	if p.cfg.MaxDetections > 0 && len(kept) > p.cfg.MaxDetections {
		kept = kept[:p.cfg.MaxDetections]
	}

	w, h := float64(dims.Width), float64(dims.Height)
	detections := make([]Detection, len(kept))
	for i, idx := range kept {
		detections[i] = Detection{
			Score:       candidates[idx].score,
			Box:         candidates[idx].box.Rescale(w, h).Rect(),
			ImageWidth:  dims.Width,
			ImageHeight: dims.Height,
		}
	}
	return detections, nil
}

func (p *Pipeline) gridCandidates(out tensor.Tensor, padding geometry.Point) ([]scored, error) {
	decoded, err := decode.DecodeGrid(out, *p.cfg.Strategy.Grid, padding, p.cfg.ScoreThreshold)
	if err != nil {
		return nil, err
	}
	candidates := make([]scored, len(decoded))
	for i, c := range decoded {
		candidates[i] = scored{box: c.Box, score: c.Score}
	}
	return candidates, nil
}

// centerSizeCandidates decodes SSD outputs. Boxes are clipped to the padded input before
// the padding is undone, which keeps them inside the letterboxed square.
func (p *Pipeline) centerSizeCandidates(offsets, logits tensor.Tensor, padding geometry.Point) ([]scored, error) {
	decoded, err := decode.DecodeCenterSizeAll(*p.cfg.Strategy.CenterSize, offsets)
	if err != nil {
		return nil, err
	}

	flat, err := logits.Flatten2D()
	if err != nil {
		return nil, fmt.Errorf("class scores: %w", err)
	}
	if flat.Shape[0] != len(decoded) || flat.Shape[1] == 0 {
		return nil, fmt.Errorf("score tensor %v does not match %d boxes: %w", logits.Shape, len(decoded), faceerr.ErrDimensionMismatch)
	}
	rows, err := flat.Rows()
	if err != nil {
		return nil, err
	}

	var candidates []scored
	for i, row := range rows {
		score := decode.Sigmoid(float64(row[len(row)-1]))
		if p.cfg.ScoreThreshold > 0 && !(score > p.cfg.ScoreThreshold) {
			continue
		}
		box := decoded[i].Clip(1, 1).Rescale(padding.X, padding.Y)
		candidates = append(candidates, scored{box: box, score: score})
	}
	return candidates, nil
}
