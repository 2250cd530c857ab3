package facematch

import (
	"fmt"
	"math"

	"github.com/kozaktomas/faceproc/internal/faceerr"
)

const (
	// DefaultDistanceThreshold is the distance above which a face is reported as unknown.
	DefaultDistanceThreshold = 0.6
	// UnknownLabel is reported when no stored descriptor is close enough.
	UnknownLabel = "unknown"
)

// Match is the result of matching one query descriptor.
type Match struct {
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
}

// IsUnknown reports whether no stored identity was close enough.
func (m Match) IsUnknown() bool {
	return m.Label == UnknownLabel
}

// String formats the match as "label (0.14)".
func (m Match) String() string {
	return fmt.Sprintf("%s (%.2f)", m.Label, m.Distance)
}

// Matcher finds the closest labeled descriptor for a query.
// It is immutable after construction and safe for concurrent use.
type Matcher struct {
	labeled   []LabeledDescriptors
	threshold float64
	dim       int
}

// NewMatcher validates and deep-copies the labeled descriptors.
func NewMatcher(labeled []LabeledDescriptors, threshold float64) (*Matcher, error) {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold < 0 {
		return nil, fmt.Errorf("distance threshold must be finite and >= 0, got %v: %w", threshold, faceerr.ErrConfiguration)
	}

	m := &Matcher{
		labeled:   make([]LabeledDescriptors, 0, len(labeled)),
		threshold: threshold,
	}
	for i, ld := range labeled {
		if len(ld.Descriptors) == 0 {
			return nil, fmt.Errorf("entry %d (%q) has no descriptors: %w", i, ld.Label, faceerr.ErrConfiguration)
		}
		for j, d := range ld.Descriptors {
			if i == 0 && j == 0 {
				m.dim = len(d)
				continue
			}
			if len(d) != m.dim {
				return nil, fmt.Errorf("descriptor %d of %q has length %d, want %d: %w",
					j, ld.Label, len(d), m.dim, faceerr.ErrInconsistentDescriptorLength)
			}
		}
		m.labeled = append(m.labeled, ld.Clone())
	}
	return m, nil
}

// NewMatcherFromDescriptors builds a matcher from unlabeled descriptors,
// labeling them "person 1", "person 2", ... in input order.
func NewMatcherFromDescriptors(descriptors []Descriptor, threshold float64) (*Matcher, error) {
	labeled := make([]LabeledDescriptors, len(descriptors))
	for i, d := range descriptors {
		labeled[i] = LabeledDescriptors{
			Label:       fmt.Sprintf("person %d", i+1),
			Descriptors: []Descriptor{d},
		}
	}
	return NewMatcher(labeled, threshold)
}

// Threshold returns the distance threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Dimension returns the descriptor length, 0 for an empty matcher.
func (m *Matcher) Dimension() int {
	return m.dim
}

// Len returns the number of labeled entries.
func (m *Matcher) Len() int {
	return len(m.labeled)
}

// Labels returns the labels in stored order.
func (m *Matcher) Labels() []string {
	labels := make([]string, len(m.labeled))
	for i, ld := range m.labeled {
		labels[i] = ld.Label
	}
	return labels
}

// LabeledDescriptors returns a deep copy of the stored entries.
func (m *Matcher) LabeledDescriptors() []LabeledDescriptors {
	out := make([]LabeledDescriptors, len(m.labeled))
	for i, ld := range m.labeled {
		out[i] = ld.Clone()
	}
	return out
}

// DescriptorsFor returns the descriptors of the first entry whose label matches,
// ignoring case, diacritics and dashes.
func (m *Matcher) DescriptorsFor(label string) ([]Descriptor, bool) {
	want := NormalizeLabel(label)
	for _, ld := range m.labeled {
		if NormalizeLabel(ld.Label) == want {
			return ld.Clone().Descriptors, true
		}
	}
	return nil, false
}

// FindBestMatch returns the label of the globally closest stored descriptor.
// The first entry in stored order wins a tie. When the closest distance exceeds
// the threshold the label is UnknownLabel and the distance is still reported.
func (m *Matcher) FindBestMatch(query Descriptor) (Match, error) {
	if len(m.labeled) == 0 {
		return Match{Label: UnknownLabel, Distance: math.Inf(1)}, nil
	}
	if len(query) != m.dim {
		return Match{}, fmt.Errorf("query has length %d, matcher has %d: %w", len(query), m.dim, faceerr.ErrDimensionMismatch)
	}

	best := Match{Label: UnknownLabel, Distance: math.Inf(1)}
	for _, ld := range m.labeled {
		for _, d := range ld.Descriptors {
			dist, err := EuclideanDistance(query, d)
			if err != nil {
				return Match{}, err
			}
			if dist < best.Distance {
				best = Match{Label: ld.Label, Distance: dist}
			}
		}
	}
	return m.applyThreshold(best), nil
}

func (m *Matcher) applyThreshold(best Match) Match {
	if best.Distance > m.threshold {
		best.Label = UnknownLabel
	}
	return best
}

// MatchAll matches every query, stopping at the first error.
func (m *Matcher) MatchAll(queries []Descriptor) ([]Match, error) {
	matches := make([]Match, len(queries))
	for i, q := range queries {
		match, err := m.FindBestMatch(q)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		matches[i] = match
	}
	return matches, nil
}

// WithLabeled returns a new matcher with the entry added, or replacing the descriptors
// of an existing entry with the same label.
func (m *Matcher) WithLabeled(ld LabeledDescriptors) (*Matcher, error) {
	labeled := m.LabeledDescriptors()
	replaced := false
	for i := range labeled {
		if labeled[i].Label == ld.Label {
			labeled[i] = ld
			replaced = true
			break
		}
	}
	if !replaced {
		labeled = append(labeled, ld)
	}
	return NewMatcher(labeled, m.threshold)
}

// WithoutLabel returns a new matcher without the entries of label, and whether any was removed.
func (m *Matcher) WithoutLabel(label string) (*Matcher, bool, error) {
	labeled := make([]LabeledDescriptors, 0, len(m.labeled))
	for _, ld := range m.labeled {
		if ld.Label != label {
			labeled = append(labeled, ld)
		}
	}
	if len(labeled) == len(m.labeled) {
		return m, false, nil
	}
	out, err := NewMatcher(labeled, m.threshold)
	return out, err == nil, err
}
