package facematch

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/kozaktomas/faceproc/internal/faceerr"
)

// persistedLabeled is the JSON form of one labeled set. Components are kept raw so
// that null, strings and booleans can be rejected instead of silently becoming zero.
type persistedLabeled struct {
	Label       *string             `json:"label"`
	Descriptors [][]json.RawMessage `json:"descriptors"`
}

type persistedMatcher struct {
	DistanceThreshold  *float64          `json:"distanceThreshold"`
	LabeledDescriptors []json.RawMessage `json:"labeledDescriptors"`
}

type labeledJSON struct {
	Label       string       `json:"label"`
	Descriptors []Descriptor `json:"descriptors"`
}

type matcherJSON struct {
	DistanceThreshold  float64       `json:"distanceThreshold"`
	LabeledDescriptors []labeledJSON `json:"labeledDescriptors"`
}

func (ld LabeledDescriptors) toJSON() labeledJSON {
	descriptors := ld.Descriptors
	if descriptors == nil {
		descriptors = []Descriptor{}
	}
	return labeledJSON{Label: ld.Label, Descriptors: descriptors}
}

// MarshalJSON encodes the set as {"label": ..., "descriptors": [[...], ...]}.
// float32 components use the shortest representation that parses back to the same value.
func (ld LabeledDescriptors) MarshalJSON() ([]byte, error) {
	return json.Marshal(ld.toJSON())
}

// UnmarshalJSON decodes and validates one labeled set.
func (ld *LabeledDescriptors) UnmarshalJSON(data []byte) error {
	parsed, err := ParseLabeledDescriptors(data)
	if err != nil {
		return err
	}
	*ld = parsed
	return nil
}

// ToPersisted returns the JSON text of the set.
func (ld LabeledDescriptors) ToPersisted() (string, error) {
	data, err := ld.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("failed to encode labeled descriptors: %w", err)
	}
	return string(data), nil
}

// ParseLabeledDescriptors decodes one labeled set, rejecting a missing label,
// an empty descriptor list, empty descriptors and non-numeric components.
func ParseLabeledDescriptors(data []byte) (LabeledDescriptors, error) {
	var p persistedLabeled
	if err := json.Unmarshal(data, &p); err != nil {
		return LabeledDescriptors{}, fmt.Errorf("invalid labeled descriptors: %v: %w", err, faceerr.ErrMalformedPersistedData)
	}
	if p.Label == nil {
		return LabeledDescriptors{}, fmt.Errorf("labeled descriptors without label: %w", faceerr.ErrMalformedPersistedData)
	}
	if len(p.Descriptors) == 0 {
		return LabeledDescriptors{}, fmt.Errorf("label %q has no descriptors: %w", *p.Label, faceerr.ErrMalformedPersistedData)
	}

	ld := LabeledDescriptors{Label: *p.Label, Descriptors: make([]Descriptor, len(p.Descriptors))}
	for i, raw := range p.Descriptors {
		if len(raw) == 0 {
			return LabeledDescriptors{}, fmt.Errorf("label %q descriptor %d has no components: %w",
				*p.Label, i, faceerr.ErrMalformedPersistedData)
		}
		d := make(Descriptor, len(raw))
		for j, component := range raw {
			v, err := strconv.ParseFloat(string(component), 32)
			if err != nil {
				return LabeledDescriptors{}, fmt.Errorf("label %q descriptor %d component %d is not a number (%s): %w",
					*p.Label, i, j, component, faceerr.ErrMalformedPersistedData)
			}
			d[j] = float32(v)
		}
		ld.Descriptors[i] = d
	}
	return ld, nil
}

// MarshalJSON encodes the threshold and labeled sets.
func (m *Matcher) MarshalJSON() ([]byte, error) {
	out := matcherJSON{
		DistanceThreshold:  m.threshold,
		LabeledDescriptors: make([]labeledJSON, len(m.labeled)),
	}
	for i, ld := range m.labeled {
		out.LabeledDescriptors[i] = ld.toJSON()
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes and validates a persisted matcher in place.
func (m *Matcher) UnmarshalJSON(data []byte) error {
	var p persistedMatcher
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid matcher: %v: %w", err, faceerr.ErrMalformedPersistedData)
	}
	if p.DistanceThreshold == nil {
		return fmt.Errorf("matcher without distanceThreshold: %w", faceerr.ErrMalformedPersistedData)
	}

	labeled := make([]LabeledDescriptors, len(p.LabeledDescriptors))
	for i, raw := range p.LabeledDescriptors {
		ld, err := ParseLabeledDescriptors(raw)
		if err != nil {
			return fmt.Errorf("labeled descriptors %d: %w", i, err)
		}
		labeled[i] = ld
	}

	parsed, err := NewMatcher(labeled, *p.DistanceThreshold)
	if err != nil {
		return err
	}
	*m = *parsed
	return nil
}

// ToPersisted returns the JSON text of the matcher.
func (m *Matcher) ToPersisted() (string, error) {
	data, err := m.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("failed to encode matcher: %w", err)
	}
	return string(data), nil
}

// FromPersisted rebuilds a matcher from ToPersisted output.
func FromPersisted(s string) (*Matcher, error) {
	var m Matcher
	if err := m.UnmarshalJSON([]byte(s)); err != nil {
		return nil, err
	}
	return &m, nil
}

type matchJSON struct {
	Label    string   `json:"label"`
	Distance *float64 `json:"distance"`
}

// MarshalJSON writes the match with a null distance when no descriptor was compared.
func (m Match) MarshalJSON() ([]byte, error) {
	out := matchJSON{Label: m.Label}
	if !math.IsInf(m.Distance, 0) && !math.IsNaN(m.Distance) {
		d := m.Distance
		out.Distance = &d
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a match; a null distance becomes +Inf.
func (m *Match) UnmarshalJSON(data []byte) error {
	var in matchJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	m.Label = in.Label
	m.Distance = math.Inf(1)
	if in.Distance != nil {
		m.Distance = *in.Distance
	}
	return nil
}
