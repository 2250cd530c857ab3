package database

import (
	"time"

	"github.com/google/uuid"
)

// StoredDescriptor is one enrolled face descriptor of a labeled identity.
type StoredDescriptor struct {
	ID         uuid.UUID
	Label      string
	Descriptor []float32
	Dim        int
	Source     string    // image the descriptor was computed from (optional)
	BBox       []float64 // [x1, y1, x2, y2] of the face in Source, in pixels (optional)
	DetScore   float64   // detection score of the face (optional)
	CreatedAt  time.Time
}

// LabelSummary describes the descriptors stored for one label.
type LabelSummary struct {
	Label string `json:"label"`
	Count int    `json:"count"`
	Dim   int    `json:"dim"`
}

// NearestDescriptor is a stored descriptor and its euclidean distance to a query.
type NearestDescriptor struct {
	StoredDescriptor
	Distance float64
}
