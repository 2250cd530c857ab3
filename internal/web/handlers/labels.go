package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceproc/internal/constants"
	"github.com/kozaktomas/faceproc/internal/database"
	"github.com/kozaktomas/faceproc/internal/facematch"
	"github.com/kozaktomas/faceproc/internal/web/middleware"
)

// LabelsHandler handles the labeled descriptor gallery
type LabelsHandler struct {
	gallery *Gallery
}

// NewLabelsHandler creates a new labels handler
func NewLabelsHandler(gallery *Gallery) *LabelsHandler {
	return &LabelsHandler{gallery: gallery}
}

// LabelsResponse lists the enrolled labels
type LabelsResponse struct {
	Labels      []database.LabelSummary `json:"labels"`
	Descriptors int                     `json:"descriptors"`
}

// EnrollRequest adds descriptors to a label
type EnrollRequest struct {
	Label       string                 `json:"label"`
	Descriptors []facematch.Descriptor `json:"descriptors"`
	Source      string                 `json:"source,omitempty"`
	// Replace drops the stored descriptors of the label first.
	Replace bool `json:"replace,omitempty"`
}

// EnrollResponse reports what was stored
type EnrollResponse struct {
	Label string      `json:"label"`
	IDs   []uuid.UUID `json:"ids"`
	Total int         `json:"total"`
}

// labelParam returns the unescaped {label} URL parameter.
func labelParam(r *http.Request) string {
	raw := chi.URLParam(r, "label")
	if label, err := url.PathUnescape(raw); err == nil {
		return label
	}
	return raw
}

// List returns the labels with their descriptor counts
func (h *LabelsHandler) List(w http.ResponseWriter, r *http.Request) {
	if store := h.gallery.Store(); store != nil {
		labels, err := store.Labels(r.Context())
		if err != nil {
			respondServiceError(w, r, err, "failed to list labels")
			return
		}
		total := 0
		for _, l := range labels {
			total += l.Count
		}
		if labels == nil {
			labels = []database.LabelSummary{}
		}
		respondJSON(w, http.StatusOK, LabelsResponse{Labels: labels, Descriptors: total})
		return
	}

	matcher := h.gallery.Matcher()
	labeled := matcher.LabeledDescriptors()
	resp := LabelsResponse{Labels: make([]database.LabelSummary, len(labeled))}
	for i, ld := range labeled {
		resp.Labels[i] = database.LabelSummary{Label: ld.Label, Count: len(ld.Descriptors), Dim: matcher.Dimension()}
		resp.Descriptors += len(ld.Descriptors)
	}
	respondJSON(w, http.StatusOK, resp)
}

// Get returns the descriptors of one label
func (h *LabelsHandler) Get(w http.ResponseWriter, r *http.Request) {
	label := labelParam(r)
	descriptors, ok := h.gallery.Matcher().DescriptorsFor(label)
	if !ok {
		respondError(w, http.StatusNotFound, "label not found")
		return
	}
	respondJSON(w, http.StatusOK, facematch.LabeledDescriptors{Label: label, Descriptors: descriptors})
}

// Enroll stores descriptors for a label and reloads the matcher
func (h *LabelsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	store := h.gallery.Store()
	if store == nil {
		respondError(w, http.StatusServiceUnavailable, errStoreUnavailable)
		return
	}

	var req EnrollRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Descriptors) > constants.MaxBatchDescriptors {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("at most %d descriptors per request", constants.MaxBatchDescriptors))
		return
	}
	ld, err := facematch.NewLabeledDescriptors(strings.TrimSpace(req.Label), req.Descriptors)
	if err != nil {
		respondServiceError(w, r, err, "invalid labeled descriptors")
		return
	}
	if current := h.gallery.Matcher(); current.Len() > 0 && len(ld.Descriptors[0]) != current.Dimension() {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("descriptors have length %d, gallery has %d", len(ld.Descriptors[0]), current.Dimension()))
		return
	}

	if req.Replace {
		if _, err := store.DeleteLabel(r.Context(), ld.Label); err != nil {
			respondServiceError(w, r, err, "failed to replace label")
			return
		}
	}
	source := req.Source
	if source == "" {
		source = constants.SourceAPI
	}
	ids, err := store.Save(r.Context(), database.FromLabeled([]facematch.LabeledDescriptors{ld}, source))
	if err != nil {
		respondServiceError(w, r, err, "failed to save descriptors")
		return
	}

	matcher, err := h.gallery.Reload(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "failed to reload gallery")
		return
	}
	total := 0
	if descriptors, ok := matcher.DescriptorsFor(ld.Label); ok {
		total = len(descriptors)
	}

	middleware.GetLogger(r.Context()).Info("descriptors enrolled",
		zap.String("label", sanitizeForLog(ld.Label)),
		zap.Int("saved", len(ids)),
		zap.Bool("replace", req.Replace))
	respondJSON(w, http.StatusCreated, EnrollResponse{Label: ld.Label, IDs: ids, Total: total})
}

// Delete removes every descriptor of a label and reloads the matcher
func (h *LabelsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	store := h.gallery.Store()
	if store == nil {
		respondError(w, http.StatusServiceUnavailable, errStoreUnavailable)
		return
	}

	label := labelParam(r)
	removed, err := store.DeleteLabel(r.Context(), label)
	if err != nil {
		respondServiceError(w, r, err, "failed to delete label")
		return
	}
	if removed == 0 {
		respondError(w, http.StatusNotFound, "label not found")
		return
	}
	if _, err := h.gallery.Reload(r.Context()); err != nil {
		respondServiceError(w, r, err, "failed to reload gallery")
		return
	}

	middleware.GetLogger(r.Context()).Info("label deleted",
		zap.String("label", sanitizeForLog(label)),
		zap.Int("descriptors", removed))
	respondJSON(w, http.StatusOK, map[string]any{"label": label, "deleted": removed})
}

// DeleteDescriptor removes a single stored descriptor by ID
func (h *LabelsHandler) DeleteDescriptor(w http.ResponseWriter, r *http.Request) {
	store := h.gallery.Store()
	if store == nil {
		respondError(w, http.StatusServiceUnavailable, errStoreUnavailable)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid descriptor id")
		return
	}
	if err := store.Delete(r.Context(), id); err != nil {
		respondServiceError(w, r, err, "failed to delete descriptor")
		return
	}
	if _, err := h.gallery.Reload(r.Context()); err != nil {
		respondServiceError(w, r, err, "failed to reload gallery")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Matcher returns the persisted JSON form of the current matcher
func (h *LabelsHandler) Matcher(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.gallery.Matcher())
}

// Import replaces labels in the store with the ones of a persisted matcher
func (h *LabelsHandler) Import(w http.ResponseWriter, r *http.Request) {
	store := h.gallery.Store()
	if store == nil {
		respondError(w, http.StatusServiceUnavailable, errStoreUnavailable)
		return
	}

	var imported facematch.Matcher
	if !decodeJSON(w, r, &imported) {
		return
	}
	saved, err := database.ImportMatcher(r.Context(), store, &imported, constants.SourceAPI)
	if err != nil {
		respondServiceError(w, r, err, "failed to import matcher")
		return
	}
	matcher, err := h.gallery.Reload(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "failed to reload gallery")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"imported": saved, "labels": matcher.Len()})
}
