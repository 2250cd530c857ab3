package handlers

import (
	"fmt"
	"net/http"

	"github.com/kozaktomas/faceproc/internal/geometry"
	"github.com/kozaktomas/faceproc/internal/nms"
)

// NMSRequest represents a non-maximum suppression request.
// Boxes are in corner form [x1, y1, x2, y2].
type NMSRequest struct {
	Boxes          [][]float64 `json:"boxes"`
	Scores         []float64   `json:"scores"`
	IoUThreshold   float64     `json:"iouThreshold"`
	ScoreThreshold *float64    `json:"scoreThreshold,omitempty"`
	Overlap        string      `json:"overlap,omitempty"`
}

// NMSResponse holds the indices of the kept boxes, best score first
type NMSResponse struct {
	Indices []int `json:"indices"`
}

// Suppress runs greedy non-maximum suppression over the request boxes
func Suppress(w http.ResponseWriter, r *http.Request) {
	var req NMSRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	opts := nms.Options{IoUThreshold: req.IoUThreshold}
	switch req.Overlap {
	case "", "union":
		opts.Overlap = nms.OverlapUnion
	case "min":
		opts.Overlap = nms.OverlapMin
	default:
		respondError(w, http.StatusBadRequest, "overlap must be union or min")
		return
	}
	if req.ScoreThreshold != nil {
		opts.FilterByScore = true
		opts.ScoreThreshold = *req.ScoreThreshold
	}

	boxes := make([]geometry.Box, len(req.Boxes))
	for i, b := range req.Boxes {
		box, ok := geometry.NewBox(b)
		if !ok {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("box %d has %d values, want 4", i, len(b)))
			return
		}
		boxes[i] = box
	}

	kept, err := nms.Suppress(boxes, req.Scores, opts)
	if err != nil {
		respondServiceError(w, r, err, "failed to suppress boxes")
		return
	}
	respondJSON(w, http.StatusOK, NMSResponse{Indices: kept})
}
