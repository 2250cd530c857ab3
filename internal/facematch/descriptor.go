// Package facematch matches face descriptors against a gallery of labeled descriptors.
package facematch

import (
	"fmt"
	"math"
	"strings"

	"github.com/kozaktomas/faceproc/internal/faceerr"
)

// DescriptorSize is the length of descriptors produced by the face recognition network.
// Matchers only require all of their descriptors to share one length.
const DescriptorSize = 128

// Descriptor is a face embedding vector.
type Descriptor []float32

// Clone returns a copy of the descriptor.
func (d Descriptor) Clone() Descriptor {
	return append(Descriptor(nil), d...)
}

// EuclideanDistance returns sqrt(sum((a[i]-b[i])^2)), accumulated in float64.
func EuclideanDistance(a, b Descriptor) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("descriptor lengths %d and %d: %w", len(a), len(b), faceerr.ErrDimensionMismatch)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// LabeledDescriptors are the reference descriptors of one identity.
type LabeledDescriptors struct {
	Label       string
	Descriptors []Descriptor
}

// NewLabeledDescriptors validates and copies the descriptors of one identity.
func NewLabeledDescriptors(label string, descriptors []Descriptor) (LabeledDescriptors, error) {
	if strings.TrimSpace(label) == "" {
		return LabeledDescriptors{}, fmt.Errorf("label must not be empty: %w", faceerr.ErrConfiguration)
	}
	if len(descriptors) == 0 {
		return LabeledDescriptors{}, fmt.Errorf("label %q has no descriptors: %w", label, faceerr.ErrConfiguration)
	}
	ld := LabeledDescriptors{Label: label}
	return ld.withDescriptors(descriptors), nil
}

func (ld LabeledDescriptors) withDescriptors(descriptors []Descriptor) LabeledDescriptors {
	ld.Descriptors = make([]Descriptor, len(descriptors))
	for i, d := range descriptors {
		ld.Descriptors[i] = d.Clone()
	}
	return ld
}

// Clone returns a deep copy.
func (ld LabeledDescriptors) Clone() LabeledDescriptors {
	return ld.withDescriptors(ld.Descriptors)
}
