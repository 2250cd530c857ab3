// Package detect turns raw detector outputs into face detections in image pixel space.
package detect

import (
	"fmt"
	"math"

	"github.com/kozaktomas/faceproc/internal/decode"
	"github.com/kozaktomas/faceproc/internal/faceerr"
	"github.com/kozaktomas/faceproc/internal/geometry"
)

// Detection is a scored face box in pixels of the original image.
type Detection struct {
	Score       float64       `json:"score"`
	Box         geometry.Rect `json:"box"`
	ImageWidth  int           `json:"imageWidth"`
	ImageHeight int           `json:"imageHeight"`
}

// RelativeBox returns the box in 0-1 coordinates of the image.
func (d Detection) RelativeBox() geometry.Rect {
	if d.ImageWidth <= 0 || d.ImageHeight <= 0 {
		return d.Box
	}
	return d.Box.Rescale(1/float64(d.ImageWidth), 1/float64(d.ImageHeight))
}

// ForSize returns the detection rescaled to an image of another size, e.g. a thumbnail.
func (d Detection) ForSize(width, height int) Detection {
	rel := d.RelativeBox()
	return Detection{
		Score:       d.Score,
		Box:         rel.Rescale(float64(width), float64(height)),
		ImageWidth:  width,
		ImageHeight: height,
	}
}

// Input sizes of the tiny-YOLOv2 detectors.
const (
	InputSizeXS = 224
	InputSizeSM = 320
	InputSizeMD = 416
	InputSizeLG = 608
)

// InputSizes maps the size names accepted on the command line and in the API.
var InputSizes = map[string]int{
	"xs": InputSizeXS,
	"sm": InputSizeSM,
	"md": InputSizeMD,
	"lg": InputSizeLG,
}

// Config configures a Pipeline.
type Config struct {
	Strategy decode.Strategy
	// ScoreThreshold drops candidates with score <= ScoreThreshold. 0 keeps everything.
	ScoreThreshold float64
	// IoUThreshold is the suppression threshold.
	IoUThreshold float64
	// InputSize is the side of the square network input in pixels.
	InputSize int
	// Padding overrides the relative letterbox padding. Zero means derive it from the image size.
	Padding geometry.Point
	// MaxDetections caps the result, 0 means unlimited.
	MaxDetections int
}

// Default values shared by the tiny-YOLOv2 configurations.
const (
	DefaultYoloScoreThreshold = 0.5
	DefaultYoloIoUThreshold   = 0.4
	DefaultSSDScoreThreshold  = 0.8
	DefaultSSDIoUThreshold    = 0.5
	DefaultSSDInputSize       = 512
	DefaultSSDMaxDetections   = 100
)

// TinyYolov2SeparableAnchors are the priors of the separable-convolution face model.
var TinyYolov2SeparableAnchors = []geometry.Point{
	{X: 1.603231, Y: 2.094468},
	{X: 6.041143, Y: 7.080126},
	{X: 2.882459, Y: 3.518061},
	{X: 4.266906, Y: 5.178857},
	{X: 9.041765, Y: 10.66308},
}

// TinyYolov2Anchors are the priors of the regular-convolution face model.
var TinyYolov2Anchors = []geometry.Point{
	{X: 0.738768, Y: 0.874946},
	{X: 2.42204, Y: 2.65704},
	{X: 4.30971, Y: 7.04493},
	{X: 10.246, Y: 4.59428},
	{X: 12.6868, Y: 11.8741},
}

// DefaultTinyYolov2SeparableConfig returns the configuration of the separable-convolution tiny-YOLOv2 model.
func DefaultTinyYolov2SeparableConfig() Config {
	return Config{
		Strategy:       decode.GridStrategy(TinyYolov2SeparableAnchors, 5),
		ScoreThreshold: DefaultYoloScoreThreshold,
		IoUThreshold:   DefaultYoloIoUThreshold,
		InputSize:      InputSizeMD,
	}
}

// DefaultTinyYolov2Config returns the configuration of the regular-convolution tiny-YOLOv2 model.
// It runs on a fixed 416 input and emits a class logit after the objectness score.
func DefaultTinyYolov2Config() Config {
	return Config{
		Strategy:       decode.GridStrategy(TinyYolov2Anchors, 6),
		ScoreThreshold: DefaultYoloScoreThreshold,
		IoUThreshold:   DefaultYoloIoUThreshold,
		InputSize:      InputSizeMD,
	}
}

// DefaultSSDConfig returns the SSD MobileNet configuration for the given reference boxes.
func DefaultSSDConfig(references []geometry.Box) Config {
	return Config{
		Strategy:       decode.CenterSizeStrategy(references),
		ScoreThreshold: DefaultSSDScoreThreshold,
		IoUThreshold:   DefaultSSDIoUThreshold,
		InputSize:      DefaultSSDInputSize,
		MaxDetections:  DefaultSSDMaxDetections,
	}
}

// Validate checks the configuration once, before any inference.
func (c Config) Validate() error {
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if math.IsNaN(c.ScoreThreshold) || c.ScoreThreshold < 0 || c.ScoreThreshold >= 1 {
		return fmt.Errorf("score threshold must be in [0, 1), got %v: %w", c.ScoreThreshold, faceerr.ErrConfiguration)
	}
	if math.IsNaN(c.IoUThreshold) || c.IoUThreshold <= 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("IoU threshold must be in (0, 1], got %v: %w", c.IoUThreshold, faceerr.ErrConfiguration)
	}
	if c.InputSize <= 0 {
		return fmt.Errorf("input size must be positive, got %d: %w", c.InputSize, faceerr.ErrConfiguration)
	}
	if c.Padding != (geometry.Point{}) && (!(c.Padding.X >= 1) || !(c.Padding.Y >= 1)) {
		return fmt.Errorf("relative padding must be >= 1, got %v: %w", c.Padding, faceerr.ErrConfiguration)
	}
	if c.MaxDetections < 0 {
		return fmt.Errorf("max detections must be >= 0, got %d: %w", c.MaxDetections, faceerr.ErrConfiguration)
	}
	return nil
}

// RelativePadding returns the factors that undo letterboxing of a width x height image
// padded to a square: the padded side divided by each original side.
func RelativePadding(width, height int) geometry.Point {
	if width <= 0 || height <= 0 {
		return geometry.Point{X: 1, Y: 1}
	}
	side := float64(max(width, height))
	return geometry.Point{X: side / float64(width), Y: side / float64(height)}
}
