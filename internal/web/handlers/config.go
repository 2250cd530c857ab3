package handlers

import (
	"net/http"

	"github.com/kozaktomas/faceproc/internal/config"
	"github.com/kozaktomas/faceproc/internal/detect"
	"github.com/kozaktomas/faceproc/internal/facematch"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config  *config.Config
	gallery *Gallery
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config, gallery *Gallery) *ConfigHandler {
	return &ConfigHandler{
		config:  cfg,
		gallery: gallery,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	DefaultDetector   string                           `json:"defaultDetector"`
	Detectors         map[string]config.DetectorPreset `json:"detectors"`
	InputSizes        map[string]int                   `json:"inputSizes"`
	DistanceThreshold float64                          `json:"distanceThreshold"`
	DescriptorSize    int                              `json:"descriptorSize"`
	GalleryWritable   bool                             `json:"galleryWritable"`
}

// Get returns the detector presets and matcher settings
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	matcher := h.gallery.Matcher()
	size := matcher.Dimension()
	if size == 0 {
		size = facematch.DescriptorSize
	}

	respondJSON(w, http.StatusOK, ConfigResponse{
		DefaultDetector:   h.config.Detectors.Default,
		Detectors:         h.config.Detectors.Presets,
		InputSizes:        detect.InputSizes,
		DistanceThreshold: matcher.Threshold(),
		DescriptorSize:    size,
		GalleryWritable:   h.gallery.Writable(),
	})
}
