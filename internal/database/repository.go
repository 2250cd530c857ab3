package database

import (
	"context"

	"github.com/google/uuid"
)

// DescriptorReader provides read-only access to the descriptor gallery
type DescriptorReader interface {
	// List returns all descriptors, labels in order of first enrollment and
	// descriptors in enrollment order within a label
	List(ctx context.Context) ([]StoredDescriptor, error)
	// GetByLabel returns the descriptors of one label, empty if the label is unknown
	GetByLabel(ctx context.Context, label string) ([]StoredDescriptor, error)
	// Labels returns per-label counts in the same order as List
	Labels(ctx context.Context) ([]LabelSummary, error)
	// Count returns the total number of descriptors stored
	Count(ctx context.Context) (int, error)
	// FindNearest returns up to limit descriptors closest to the query by euclidean distance
	FindNearest(ctx context.Context, descriptor []float32, limit int) ([]NearestDescriptor, error)
}

// DescriptorWriter provides write access to the descriptor gallery
type DescriptorWriter interface {
	DescriptorReader

	// Save stores descriptors and returns their assigned IDs.
	// All descriptors must share one length.
	Save(ctx context.Context, descriptors []StoredDescriptor) ([]uuid.UUID, error)

	// DeleteLabel removes every descriptor of a label and returns how many were removed
	DeleteLabel(ctx context.Context, label string) (int, error)

	// Delete removes a single descriptor by ID
	Delete(ctx context.Context, id uuid.UUID) error
}
