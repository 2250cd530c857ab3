package facematch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLabel(t *testing.T) {
	tests := map[string]string{
		"Jan Novák":          "jan novak",
		"jan-novak":          "jan novak",
		"jan_novák":          "jan novak",
		"Žluťoučký  kůň":     "zlutoucky kun",
		"  person   1 ":      "person 1",
		"--Jiří--":           "jiri",
		"Zoë\tSaldaña":       "zoe saldana",
		"ALREADY normalized": "already normalized",
		"":                   "",
	}
	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, want, NormalizeLabel(input))
		})
	}
}

func TestDescriptorsFor_NormalizedLookup(t *testing.T) {
	m, err := NewMatcher([]LabeledDescriptors{
		{Label: "Jan Novák", Descriptors: []Descriptor{{1, 0}}},
	}, DefaultDistanceThreshold)
	assert.NoError(t, err)

	for _, query := range []string{"Jan Novák", "jan novak", "JAN-NOVAK", " jan_novák "} {
		descs, ok := m.DescriptorsFor(query)
		assert.True(t, ok, query)
		assert.Len(t, descs, 1, query)
	}
	_, ok := m.DescriptorsFor("jan")
	assert.False(t, ok)
}
