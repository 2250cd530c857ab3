package facematch

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/faceproc/internal/faceerr"
)

func gallery(t *testing.T, rng *rand.Rand, labels, perLabel, dim int) *Matcher {
	t.Helper()
	labeled := make([]LabeledDescriptors, labels)
	for i := range labeled {
		center := randomDescriptor(rng, dim)
		descs := make([]Descriptor, perLabel)
		for j := range descs {
			d := center.Clone()
			for k := range d {
				d[k] += float32(rng.NormFloat64() * 0.05)
			}
			descs[j] = d
		}
		labeled[i] = LabeledDescriptors{Label: fmt.Sprintf("person %d", i), Descriptors: descs}
	}
	m, err := NewMatcher(labeled, DefaultDistanceThreshold)
	require.NoError(t, err)
	return m
}

func TestIndex_AgreesWithMatcher(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	m := gallery(t, rng, 20, 3, 16)
	idx := BuildIndex(m)
	assert.Equal(t, 60, idx.Len())

	for i, ld := range m.LabeledDescriptors() {
		query := ld.Descriptors[0].Clone()
		query[0] += 0.01

		exact, err := m.FindBestMatch(query)
		require.NoError(t, err)
		approx, err := idx.FindBestMatch(query)
		require.NoError(t, err)

		assert.Equal(t, exact.Label, approx.Label, "label %d", i)
		assert.InDelta(t, exact.Distance, approx.Distance, 1e-9)
	}
}

func TestIndex_UnknownAndEmpty(t *testing.T) {
	idx := BuildIndex(abMatcher(t))

	match, err := idx.FindBestMatch(Descriptor{0, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, UnknownLabel, match.Label)

	_, err = idx.FindBestMatch(Descriptor{0, 1})
	assert.True(t, errors.Is(err, faceerr.ErrDimensionMismatch))

	empty, err := NewMatcher(nil, 0.6)
	require.NoError(t, err)
	match, err = BuildIndex(empty).FindBestMatch(Descriptor{1})
	require.NoError(t, err)
	assert.Equal(t, UnknownLabel, match.Label)
	assert.True(t, math.IsInf(match.Distance, 1))
}

func TestIndex_SearchOrdered(t *testing.T) {
	m, err := NewMatcher([]LabeledDescriptors{
		{Label: "a", Descriptors: []Descriptor{{0, 0}, {3, 0}}},
		{Label: "b", Descriptors: []Descriptor{{1, 0}}},
	}, 10)
	require.NoError(t, err)

	matches, err := BuildIndex(m).Search(Descriptor{0.1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "a", matches[0].Label)
	assert.Equal(t, "b", matches[1].Label)
	assert.Equal(t, "a", matches[2].Label)
	assert.LessOrEqual(t, matches[0].Distance, matches[1].Distance)
	assert.LessOrEqual(t, matches[1].Distance, matches[2].Distance)
}

func TestIndex_ExportImport(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	m := gallery(t, rng, 5, 2, 8)
	idx := BuildIndex(m)

	var buf bytes.Buffer
	require.NoError(t, idx.Export(&buf))

	imported, err := ImportIndex(&buf, m)
	require.NoError(t, err)
	assert.Equal(t, idx.Len(), imported.Len())

	query := m.LabeledDescriptors()[3].Descriptors[1]
	match, err := imported.FindBestMatch(query)
	require.NoError(t, err)
	assert.Equal(t, "person 3", match.Label)
	assert.Equal(t, 0.0, match.Distance)
}

func TestIndex_RejectsGraphOfChangedGallery(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	saved := gallery(t, rng, 50, 4, 16)
	path := filepath.Join(t.TempDir(), "gallery.hnsw")
	require.NoError(t, BuildIndex(saved).Save(path))

	changed := gallery(t, rng, 50, 4, 16)
	_, err := LoadIndex(path, changed)
	require.True(t, errors.Is(err, faceerr.ErrMalformedPersistedData), "got %v", err)

	var buf bytes.Buffer
	require.NoError(t, BuildIndex(saved).Export(&buf))
	_, err = ImportIndex(&buf, changed)
	assert.True(t, errors.Is(err, faceerr.ErrMalformedPersistedData), "got %v", err)

	// Replacing one descriptor of an otherwise identical gallery is enough.
	labeled := saved.LabeledDescriptors()
	labeled[7].Descriptors[2] = randomDescriptor(rng, 16)
	edited, err := NewMatcher(labeled, saved.Threshold())
	require.NoError(t, err)
	_, err = LoadIndex(path, edited)
	assert.True(t, errors.Is(err, faceerr.ErrMalformedPersistedData), "got %v", err)

	loaded, err := LoadIndex(path, saved)
	require.NoError(t, err)
	for _, ld := range saved.LabeledDescriptors() {
		match, err := loaded.FindBestMatch(ld.Descriptors[0])
		require.NoError(t, err)
		assert.Equal(t, ld.Label, match.Label)
	}
}

func TestIndex_SaveLoad(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	m := gallery(t, rng, 4, 2, 8)
	path := filepath.Join(t.TempDir(), "gallery.hnsw")

	require.NoError(t, BuildIndex(m).Save(path))

	loaded, err := LoadIndex(path, m)
	require.NoError(t, err)
	assert.Equal(t, 8, loaded.Len())

	// A graph saved for another gallery does not fit.
	other := gallery(t, rng, 2, 1, 8)
	_, err = LoadIndex(path, other)
	assert.True(t, errors.Is(err, faceerr.ErrMalformedPersistedData))

	// A graph of the same size over different descriptors does not fit either.
	sameSize := gallery(t, rng, 4, 2, 8)
	_, err = LoadIndex(path, sameSize)
	assert.True(t, errors.Is(err, faceerr.ErrMalformedPersistedData))

	// A missing file builds the index instead.
	fresh, err := LoadIndex(filepath.Join(t.TempDir(), "missing.hnsw"), other)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Len())
}
