package database

import (
	"context"
	"fmt"

	"github.com/kozaktomas/faceproc/internal/facematch"
)

// GroupByLabel turns stored descriptors into labeled sets, keeping the order in which
// labels first appear.
func GroupByLabel(stored []StoredDescriptor) []facematch.LabeledDescriptors {
	index := make(map[string]int)
	var labeled []facematch.LabeledDescriptors
	for _, s := range stored {
		i, ok := index[s.Label]
		if !ok {
			i = len(labeled)
			index[s.Label] = i
			labeled = append(labeled, facematch.LabeledDescriptors{Label: s.Label})
		}
		labeled[i].Descriptors = append(labeled[i].Descriptors, facematch.Descriptor(s.Descriptor))
	}
	return labeled
}

// LoadMatcher builds a matcher over the whole gallery.
func LoadMatcher(ctx context.Context, r DescriptorReader, threshold float64) (*facematch.Matcher, error) {
	stored, err := r.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list descriptors: %w", err)
	}
	m, err := facematch.NewMatcher(GroupByLabel(stored), threshold)
	if err != nil {
		return nil, fmt.Errorf("build matcher from gallery: %w", err)
	}
	return m, nil
}

// FromLabeled converts labeled sets into rows ready to be saved.
func FromLabeled(labeled []facematch.LabeledDescriptors, source string) []StoredDescriptor {
	var stored []StoredDescriptor
	for _, ld := range labeled {
		for _, d := range ld.Descriptors {
			stored = append(stored, StoredDescriptor{
				Label:      ld.Label,
				Descriptor: d.Clone(),
				Dim:        len(d),
				Source:     source,
			})
		}
	}
	return stored
}

// ImportMatcher saves every descriptor of the matcher, replacing labels that already exist.
func ImportMatcher(ctx context.Context, w DescriptorWriter, m *facematch.Matcher, source string) (int, error) {
	labeled := m.LabeledDescriptors()
	for _, ld := range labeled {
		if _, err := w.DeleteLabel(ctx, ld.Label); err != nil {
			return 0, fmt.Errorf("replace label %q: %w", ld.Label, err)
		}
	}
	ids, err := w.Save(ctx, FromLabeled(labeled, source))
	if err != nil {
		return 0, fmt.Errorf("save descriptors: %w", err)
	}
	return len(ids), nil
}
