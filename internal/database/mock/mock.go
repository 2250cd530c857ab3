// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kozaktomas/faceproc/internal/database"
	"github.com/kozaktomas/faceproc/internal/faceerr"
)

// MockDescriptorStore is an in-memory implementation of database.DescriptorWriter
type MockDescriptorStore struct {
	mu          sync.RWMutex
	descriptors []database.StoredDescriptor

	// Error injection
	ListError        error
	GetByLabelError  error
	LabelsError      error
	CountError       error
	FindNearestError error
	SaveError        error
	DeleteLabelError error
	DeleteError      error
}

// NewMockDescriptorStore creates a new empty mock store
func NewMockDescriptorStore() *MockDescriptorStore {
	return &MockDescriptorStore{}
}

var _ database.DescriptorWriter = (*MockDescriptorStore)(nil)

// AddDescriptor adds a descriptor to the mock store without validation
func (m *MockDescriptorStore) AddDescriptor(label string, descriptor []float32) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.descriptors = append(m.descriptors, database.StoredDescriptor{
		ID:         id,
		Label:      label,
		Descriptor: append([]float32(nil), descriptor...),
		Dim:        len(descriptor),
	})
	return id
}

// grouped returns descriptors with labels in order of first appearance
func (m *MockDescriptorStore) grouped() []database.StoredDescriptor {
	first := make(map[string]int)
	for i, d := range m.descriptors {
		if _, ok := first[d.Label]; !ok {
			first[d.Label] = i
		}
	}
	out := make([]database.StoredDescriptor, len(m.descriptors))
	copy(out, m.descriptors)
	sort.SliceStable(out, func(i, j int) bool {
		return first[out[i].Label] < first[out[j].Label]
	})
	return out
}

// List returns all descriptors
func (m *MockDescriptorStore) List(ctx context.Context) ([]database.StoredDescriptor, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.grouped(), nil
}

// GetByLabel returns the descriptors of one label
func (m *MockDescriptorStore) GetByLabel(ctx context.Context, label string) ([]database.StoredDescriptor, error) {
	if m.GetByLabelError != nil {
		return nil, m.GetByLabelError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.StoredDescriptor
	for _, d := range m.descriptors {
		if d.Label == label {
			out = append(out, d)
		}
	}
	return out, nil
}

// Labels returns per-label counts
func (m *MockDescriptorStore) Labels(ctx context.Context) ([]database.LabelSummary, error) {
	if m.LabelsError != nil {
		return nil, m.LabelsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var labels []database.LabelSummary
	index := make(map[string]int)
	for _, d := range m.grouped() {
		i, ok := index[d.Label]
		if !ok {
			i = len(labels)
			index[d.Label] = i
			labels = append(labels, database.LabelSummary{Label: d.Label, Dim: d.Dim})
		}
		labels[i].Count++
	}
	return labels, nil
}

// Count returns the number of stored descriptors
func (m *MockDescriptorStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.descriptors), nil
}

// FindNearest returns the closest descriptors of the same length
func (m *MockDescriptorStore) FindNearest(ctx context.Context, descriptor []float32, limit int) ([]database.NearestDescriptor, error) {
	if m.FindNearestError != nil {
		return nil, m.FindNearestError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var nearest []database.NearestDescriptor
	for _, d := range m.descriptors {
		if len(d.Descriptor) != len(descriptor) {
			continue
		}
		var sum float64
		for i := range d.Descriptor {
			diff := float64(d.Descriptor[i]) - float64(descriptor[i])
			sum += diff * diff
		}
		nearest = append(nearest, database.NearestDescriptor{StoredDescriptor: d, Distance: math.Sqrt(sum)})
	}
	sort.SliceStable(nearest, func(i, j int) bool { return nearest[i].Distance < nearest[j].Distance })
	if len(nearest) > limit {
		nearest = nearest[:max(limit, 0)]
	}
	return nearest, nil
}

// Save stores descriptors, enforcing one length per call
func (m *MockDescriptorStore) Save(ctx context.Context, descriptors []database.StoredDescriptor) ([]uuid.UUID, error) {
	if m.SaveError != nil {
		return nil, m.SaveError
	}
	if len(descriptors) == 0 {
		return nil, nil
	}
	dim := len(descriptors[0].Descriptor)
	for i, d := range descriptors {
		if d.Label == "" {
			return nil, fmt.Errorf("descriptor %d has no label: %w", i, faceerr.ErrConfiguration)
		}
		if len(d.Descriptor) == 0 || len(d.Descriptor) != dim {
			return nil, fmt.Errorf("descriptor %d has length %d, want %d: %w", i, len(d.Descriptor), dim, faceerr.ErrInconsistentDescriptorLength)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uuid.UUID, len(descriptors))
	for i, d := range descriptors {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		d.Descriptor = append([]float32(nil), d.Descriptor...)
		d.Dim = len(d.Descriptor)
		m.descriptors = append(m.descriptors, d)
		ids[i] = d.ID
	}
	return ids, nil
}

// DeleteLabel removes all descriptors of a label
func (m *MockDescriptorStore) DeleteLabel(ctx context.Context, label string) (int, error) {
	if m.DeleteLabelError != nil {
		return 0, m.DeleteLabelError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.descriptors[:0]
	removed := 0
	for _, d := range m.descriptors {
		if d.Label == label {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	m.descriptors = kept
	return removed, nil
}

// Delete removes one descriptor
func (m *MockDescriptorStore) Delete(ctx context.Context, id uuid.UUID) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.descriptors {
		if d.ID == id {
			m.descriptors = append(m.descriptors[:i], m.descriptors[i+1:]...)
			return nil
		}
	}
	return nil
}
