package handlers

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceproc/internal/config"
	"github.com/kozaktomas/faceproc/internal/detect"
	"github.com/kozaktomas/faceproc/internal/faceerr"
	"github.com/kozaktomas/faceproc/internal/geometry"
	"github.com/kozaktomas/faceproc/internal/tensor"
	"github.com/kozaktomas/faceproc/internal/web/middleware"
)

var errInvalidReference = fmt.Errorf("reference boxes must be [x1, y1, x2, y2]: %w", faceerr.ErrConfiguration)

// DetectHandler runs the detection post-processing on raw network outputs
type DetectHandler struct {
	config *config.Config
}

// NewDetectHandler creates a new detect handler
func NewDetectHandler(cfg *config.Config) *DetectHandler {
	return &DetectHandler{config: cfg}
}

// TensorPayload is a tensor sent either as a float array or as little-endian
// float32 bytes (base64 in JSON).
type TensorPayload struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data,omitempty"`
	Raw   []byte    `json:"raw,omitempty"`
}

// Tensor validates the payload against its shape.
func (p TensorPayload) Tensor() (tensor.Tensor, error) {
	if len(p.Raw) > 0 {
		return tensor.FromBytes(p.Shape, p.Raw)
	}
	return tensor.New(p.Shape, p.Data)
}

// DetectRequest represents a detection request
type DetectRequest struct {
	Detector       string         `json:"detector"`
	ImageWidth     int            `json:"imageWidth"`
	ImageHeight    int            `json:"imageHeight"`
	Boxes          TensorPayload  `json:"boxes"`
	Scores         *TensorPayload `json:"scores,omitempty"`
	ScoreThreshold *float64       `json:"scoreThreshold,omitempty"`
	IoUThreshold   *float64       `json:"iouThreshold,omitempty"`
	References     [][]float64    `json:"references,omitempty"`
}

// DetectionResult is one detected face
type DetectionResult struct {
	Score       float64       `json:"score"`
	Box         geometry.Rect `json:"box"`
	RelativeBox geometry.Rect `json:"relativeBox"`
}

// DetectResponse represents the detection response
type DetectResponse struct {
	ID         string            `json:"id"`
	Detector   string            `json:"detector"`
	Count      int               `json:"count"`
	Detections []DetectionResult `json:"detections"`
}

// pipeline builds the pipeline for a request from its preset and overrides.
func (h *DetectHandler) pipeline(req *DetectRequest) (string, *detect.Pipeline, error) {
	name := req.Detector
	if name == "" {
		name = h.config.Detectors.Default
	}
	preset, ok := h.config.Detector(name)
	if !ok {
		return name, nil, nil
	}

	references := make([]geometry.Box, 0, len(req.References))
	for _, r := range req.References {
		box, ok := geometry.NewBox(r)
		if !ok {
			return name, nil, errInvalidReference
		}
		references = append(references, box)
	}

	cfg, err := detect.FromPreset(preset, references)
	if err != nil {
		return name, nil, err
	}
	if req.ScoreThreshold != nil {
		cfg.ScoreThreshold = *req.ScoreThreshold
	}
	if req.IoUThreshold != nil {
		cfg.IoUThreshold = *req.IoUThreshold
	}
	p, err := detect.NewPipeline(cfg)
	return name, p, err
}

// Detect decodes, filters and suppresses raw detector outputs for one image
func (h *DetectHandler) Detect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	name, pipeline, err := h.pipeline(&req)
	if err != nil {
		respondServiceError(w, r, err, "failed to configure detector")
		return
	}
	if pipeline == nil {
		respondError(w, http.StatusBadRequest, "unknown detector: "+name)
		return
	}

	boxes, err := req.Boxes.Tensor()
	if err != nil {
		respondServiceError(w, r, err, "invalid boxes tensor")
		return
	}
	var scores tensor.Tensor
	if req.Scores != nil {
		if scores, err = req.Scores.Tensor(); err != nil {
			respondServiceError(w, r, err, "invalid scores tensor")
			return
		}
	}

	dims := geometry.Dimensions{Width: req.ImageWidth, Height: req.ImageHeight}
	detections, err := pipeline.LocateFaces(boxes, scores, dims)
	if err != nil {
		respondServiceError(w, r, err, "failed to locate faces")
		return
	}

	resp := DetectResponse{
		ID:         uuid.NewString(),
		Detector:   name,
		Count:      len(detections),
		Detections: make([]DetectionResult, len(detections)),
	}
	for i, d := range detections {
		resp.Detections[i] = DetectionResult{Score: d.Score, Box: d.Box, RelativeBox: d.RelativeBox()}
	}

	middleware.GetLogger(r.Context()).Debug("faces located",
		zap.String("detection_id", resp.ID),
		zap.String("detector", sanitizeForLog(name)),
		zap.Int("count", resp.Count))
	respondJSON(w, http.StatusOK, resp)
}
