package handlers

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/faceproc/internal/constants"
	"github.com/kozaktomas/faceproc/internal/database"
	"github.com/kozaktomas/faceproc/internal/facematch"
	"github.com/kozaktomas/faceproc/internal/web/middleware"
)

// MatchHandler handles descriptor matching endpoints
type MatchHandler struct {
	gallery *Gallery
}

// NewMatchHandler creates a new match handler
func NewMatchHandler(gallery *Gallery) *MatchHandler {
	return &MatchHandler{gallery: gallery}
}

// MatchRequest holds one descriptor or a batch of descriptors
type MatchRequest struct {
	Descriptor  facematch.Descriptor   `json:"descriptor,omitempty"`
	Descriptors []facematch.Descriptor `json:"descriptors,omitempty"`
}

// MatchResponse holds the match of a single descriptor or of every descriptor of a batch
type MatchResponse struct {
	Match   *facematch.Match  `json:"match,omitempty"`
	Matches []facematch.Match `json:"matches,omitempty"`
}

// Match finds the best labeled match for each query descriptor
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	single := len(req.Descriptor) > 0
	batch := len(req.Descriptors) > 0
	switch {
	case single == batch:
		respondError(w, http.StatusBadRequest, "exactly one of descriptor or descriptors is required")
		return
	case len(req.Descriptors) > constants.MaxBatchDescriptors:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("at most %d descriptors per request", constants.MaxBatchDescriptors))
		return
	}

	matcher := h.gallery.Matcher()
	if single {
		match, err := matcher.FindBestMatch(req.Descriptor)
		if err != nil {
			respondServiceError(w, r, err, "failed to match descriptor")
			return
		}
		respondJSON(w, http.StatusOK, MatchResponse{Match: &match})
		return
	}

	matches, err := matcher.MatchAll(req.Descriptors)
	if err != nil {
		respondServiceError(w, r, err, "failed to match descriptors")
		return
	}
	unknown := 0
	for _, m := range matches {
		if m.IsUnknown() {
			unknown++
		}
	}
	middleware.GetLogger(r.Context()).Debug("descriptors matched",
		zap.Int("count", len(matches)),
		zap.Int("unknown", unknown))
	respondJSON(w, http.StatusOK, MatchResponse{Matches: matches})
}

// DistanceRequest holds two descriptors to compare
type DistanceRequest struct {
	A facematch.Descriptor `json:"a"`
	B facematch.Descriptor `json:"b"`
}

// Distance returns the euclidean distance between two descriptors
func (h *MatchHandler) Distance(w http.ResponseWriter, r *http.Request) {
	var req DistanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	dist, err := facematch.EuclideanDistance(req.A, req.B)
	if err != nil {
		respondServiceError(w, r, err, "failed to compute distance")
		return
	}
	respondJSON(w, http.StatusOK, map[string]float64{"distance": dist})
}

// NearestRequest asks for the stored descriptors closest to a query
type NearestRequest struct {
	Descriptor facematch.Descriptor `json:"descriptor"`
	Limit      int                  `json:"limit,omitempty"`
}

// Neighbor is one stored descriptor close to the query
type Neighbor struct {
	ID       string  `json:"id,omitempty"`
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
	Source   string  `json:"source,omitempty"`
}

// Nearest lists the stored descriptors closest to the query. With a database the
// search runs there, otherwise on the in-memory index of the gallery.
func (h *MatchHandler) Nearest(w http.ResponseWriter, r *http.Request) {
	var req NearestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Descriptor) == 0 {
		respondError(w, http.StatusBadRequest, "descriptor is required")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = constants.DefaultNearestLimit
	}
	limit = min(limit, constants.MaxNearestLimit)

	if store := h.gallery.Store(); store != nil {
		nearest, err := store.FindNearest(r.Context(), req.Descriptor, limit)
		if err != nil {
			respondServiceError(w, r, err, "failed to search descriptors")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"neighbors": neighborsFromStore(nearest)})
		return
	}

	matches, err := h.gallery.Index().Search(req.Descriptor, limit)
	if err != nil {
		respondServiceError(w, r, err, "failed to search descriptors")
		return
	}
	neighbors := make([]Neighbor, len(matches))
	for i, m := range matches {
		neighbors[i] = Neighbor{Label: m.Label, Distance: m.Distance}
	}
	respondJSON(w, http.StatusOK, map[string]any{"neighbors": neighbors})
}

func neighborsFromStore(nearest []database.NearestDescriptor) []Neighbor {
	neighbors := make([]Neighbor, len(nearest))
	for i, n := range nearest {
		neighbors[i] = Neighbor{
			ID:       n.ID.String(),
			Label:    n.Label,
			Distance: n.Distance,
			Source:   n.Source,
		}
	}
	return neighbors
}
