package facematch

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"sync"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/faceproc/internal/faceerr"
)

const (
	// IndexMaxNeighbors is the HNSW M parameter.
	IndexMaxNeighbors = 16
	// IndexSearchCandidates is how many neighbors are re-ranked with the exact distance.
	IndexSearchCandidates = 10
)

// position locates a descriptor inside the matcher.
type position struct {
	entry      int
	descriptor int
}

// Index is an approximate nearest-neighbor index over the descriptors of a matcher.
// Node keys are the descriptor positions in stored order, so a graph saved for one
// matcher only loads against a matcher with the same descriptors.
type Index struct {
	matcher    *Matcher
	graph      *hnsw.Graph[int64]
	positions  []position
	candidates int
	mu         sync.RWMutex
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = IndexMaxNeighbors
	g.Ml = 1.0 / float64(IndexMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance
	return g
}

func indexPositions(m *Matcher) []position {
	var positions []position
	for i, ld := range m.labeled {
		for j := range ld.Descriptors {
			positions = append(positions, position{entry: i, descriptor: j})
		}
	}
	return positions
}

// BuildIndex adds every descriptor of the matcher to a new graph.
func BuildIndex(m *Matcher) *Index {
	idx := &Index{
		matcher:    m,
		graph:      newGraph(),
		positions:  indexPositions(m),
		candidates: IndexSearchCandidates,
	}
	for key, p := range idx.positions {
		idx.graph.Add(hnsw.MakeNode(int64(key), []float32(m.labeled[p.entry].Descriptors[p.descriptor])))
	}
	return idx
}

// SetCandidates changes how many graph neighbors are re-ranked. Values below 1 are ignored.
func (idx *Index) SetCandidates(k int) {
	if k < 1 {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.candidates = k
}

// Matcher returns the matcher the index was built for.
func (idx *Index) Matcher() *Matcher {
	return idx.matcher
}

// Len returns the number of indexed descriptors.
func (idx *Index) Len() int {
	return len(idx.positions)
}

// Search returns up to k stored descriptors near the query, closest first,
// with their exact distances.
func (idx *Index) Search(query Descriptor, k int) ([]Match, error) {
	if len(idx.positions) == 0 || k <= 0 {
		return []Match{}, nil
	}
	if len(query) != idx.matcher.dim {
		return nil, fmt.Errorf("query has length %d, index has %d: %w", len(query), idx.matcher.dim, faceerr.ErrDimensionMismatch)
	}

	idx.mu.RLock()
	neighbors := idx.graph.Search([]float32(query), min(k, len(idx.positions)))
	idx.mu.RUnlock()

	type ranked struct {
		key   int64
		match Match
	}
	results := make([]ranked, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Key < 0 || int(n.Key) >= len(idx.positions) {
			return nil, fmt.Errorf("index node %d outside of %d descriptors: %w", n.Key, len(idx.positions), faceerr.ErrMalformedPersistedData)
		}
		p := idx.positions[n.Key]
		ld := idx.matcher.labeled[p.entry]
		dist, err := EuclideanDistance(query, ld.Descriptors[p.descriptor])
		if err != nil {
			return nil, err
		}
		results = append(results, ranked{key: n.Key, match: Match{Label: ld.Label, Distance: dist}})
	}

	// Insertion sort keeps stored order among equal distances.
	for i := 1; i < len(results); i++ {
		for j := i; j > 0; j-- {
			a, b := results[j-1], results[j]
			if a.match.Distance < b.match.Distance || (a.match.Distance == b.match.Distance && a.key < b.key) {
				break
			}
			results[j-1], results[j] = b, a
		}
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = r.match
	}
	return matches, nil
}

// FindBestMatch is the approximate counterpart of Matcher.FindBestMatch: the graph
// neighbors are re-ranked with the exact distance and the threshold rule applies.
func (idx *Index) FindBestMatch(query Descriptor) (Match, error) {
	if len(idx.positions) == 0 {
		return Match{Label: UnknownLabel, Distance: math.Inf(1)}, nil
	}
	idx.mu.RLock()
	k := idx.candidates
	idx.mu.RUnlock()

	matches, err := idx.Search(query, k)
	if err != nil {
		return Match{}, err
	}
	if len(matches) == 0 {
		return Match{Label: UnknownLabel, Distance: math.Inf(1)}, nil
	}
	return idx.matcher.applyThreshold(matches[0]), nil
}

// Export writes the graph.
func (idx *Index) Export(w io.Writer) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if err := idx.graph.Export(w); err != nil {
		return fmt.Errorf("failed to export index graph: %w", err)
	}
	return nil
}

// Save writes the graph to path. An empty index removes the file.
func (idx *Index) Save(path string) error {
	if len(idx.positions) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove index file: %w", err)
		}
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := idx.Export(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close index file: %w", err)
	}
	return nil
}

// ImportIndex reads a graph written by Export for the given matcher.
func ImportIndex(r io.Reader, m *Matcher) (*Index, error) {
	g := newGraph()
	if err := g.Import(r); err != nil {
		return nil, fmt.Errorf("failed to import index graph: %v: %w", err, faceerr.ErrMalformedPersistedData)
	}
	return attachGraph(g, m)
}

// LoadIndex loads the graph at path for the given matcher.
// A missing file builds a fresh index.
func LoadIndex(path string, m *Matcher) (*Index, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return BuildIndex(m), nil
	}
	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return nil, fmt.Errorf("failed to load index: %v: %w", err, faceerr.ErrMalformedPersistedData)
	}
	return attachGraph(saved.Graph, m)
}

func attachGraph(g *hnsw.Graph[int64], m *Matcher) (*Index, error) {
	positions := indexPositions(m)
	if g.Len() != len(positions) {
		return nil, fmt.Errorf("index holds %d descriptors, matcher has %d: %w", g.Len(), len(positions), faceerr.ErrMalformedPersistedData)
	}
	for key, p := range positions {
		want := m.labeled[p.entry].Descriptors[p.descriptor]
		got, ok := g.Lookup(int64(key))
		if !ok || !slices.Equal(got, []float32(want)) {
			return nil, fmt.Errorf("index node %d does not hold descriptor %d of %q: %w",
				key, p.descriptor, m.labeled[p.entry].Label, faceerr.ErrMalformedPersistedData)
		}
	}
	return &Index{matcher: m, graph: g, positions: positions, candidates: IndexSearchCandidates}, nil
}
