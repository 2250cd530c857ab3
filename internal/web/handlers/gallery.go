package handlers

import (
	"context"
	"sync"

	"github.com/kozaktomas/faceproc/internal/database"
	"github.com/kozaktomas/faceproc/internal/facematch"
)

// Gallery holds the matcher served by the API and the store it is reloaded from.
// Matchers are immutable, so readers keep using the one they got while a reload swaps it.
type Gallery struct {
	mu      sync.RWMutex
	matcher *facematch.Matcher
	index   *facematch.Index
	store   database.DescriptorWriter
}

// NewGallery creates a gallery. store may be nil, which makes the gallery read-only.
func NewGallery(matcher *facematch.Matcher, store database.DescriptorWriter) *Gallery {
	return &Gallery{matcher: matcher, store: store}
}

// Matcher returns the current matcher.
func (g *Gallery) Matcher() *facematch.Matcher {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.matcher
}

// Store returns the descriptor store, or nil for a read-only gallery.
func (g *Gallery) Store() database.DescriptorWriter {
	return g.store
}

// Writable reports whether enrollment is possible.
func (g *Gallery) Writable() bool {
	return g.store != nil
}

// Index returns the nearest-neighbor index of the current matcher, building it on first use.
func (g *Gallery) Index() *facematch.Index {
	g.mu.RLock()
	idx := g.index
	g.mu.RUnlock()
	if idx != nil {
		return idx
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.index == nil {
		g.index = facematch.BuildIndex(g.matcher)
	}
	return g.index
}

// Replace swaps the current matcher and drops its index.
func (g *Gallery) Replace(m *facematch.Matcher) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.matcher = m
	g.index = nil
}

// Reload rebuilds the matcher from the store, keeping the current distance threshold.
func (g *Gallery) Reload(ctx context.Context) (*facematch.Matcher, error) {
	m, err := database.LoadMatcher(ctx, g.store, g.Matcher().Threshold())
	if err != nil {
		return nil, err
	}
	g.Replace(m)
	return m, nil
}

// UseIndex installs a prebuilt index. It is ignored unless it was built for the current matcher.
func (g *Gallery) UseIndex(idx *facematch.Index) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if idx == nil || idx.Matcher() != g.matcher {
		return false
	}
	g.index = idx
	return true
}
