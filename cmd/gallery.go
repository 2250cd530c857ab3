package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kozaktomas/faceproc/internal/config"
	"github.com/kozaktomas/faceproc/internal/database"
	"github.com/kozaktomas/faceproc/internal/database/postgres"
	"github.com/kozaktomas/faceproc/internal/facematch"
)

var errNoGallery = errors.New("no writable gallery: set DATABASE_URL or GALLERY_PATH")

// gallerySource is the labeled descriptor set a command works on.
// store is nil unless the gallery lives in PostgreSQL.
type gallerySource struct {
	matcher *facematch.Matcher
	store   database.DescriptorWriter
	pool    *postgres.Pool
	path    string
	// indexPath is the persisted HNSW graph that goes stale when the gallery changes.
	indexPath string
}

// openGallery loads the gallery from PostgreSQL when DATABASE_URL is set, otherwise
// from the GALLERY_PATH file. Without either the gallery is empty.
func openGallery(ctx context.Context, cfg *config.Config, log *zap.Logger) (*gallerySource, error) {
	g, err := openGallerySource(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	g.indexPath = cfg.Matcher.IndexPath
	return g, nil
}

func openGallerySource(ctx context.Context, cfg *config.Config, log *zap.Logger) (*gallerySource, error) {
	threshold := cfg.Matcher.DistanceThreshold

	if cfg.Database.URL != "" {
		pool, err := postgres.Open(ctx, &cfg.Database, log)
		if err != nil {
			return nil, err
		}
		repo := postgres.NewDescriptorRepository(pool)
		m, err := database.LoadMatcher(ctx, repo, threshold)
		if err != nil {
			pool.Close()
			return nil, err
		}
		log.Debug("gallery loaded from database", zap.Int("labels", m.Len()))
		return &gallerySource{matcher: m, store: repo, pool: pool}, nil
	}

	if cfg.Matcher.GalleryPath != "" {
		m, err := readGalleryFile(cfg.Matcher.GalleryPath, threshold)
		if err != nil {
			return nil, err
		}
		log.Debug("gallery loaded from file",
			zap.String("path", cfg.Matcher.GalleryPath),
			zap.Int("labels", m.Len()))
		return &gallerySource{matcher: m, path: cfg.Matcher.GalleryPath}, nil
	}

	m, err := facematch.NewMatcher(nil, threshold)
	if err != nil {
		return nil, err
	}
	log.Warn("no gallery configured, every face is unknown")
	return &gallerySource{matcher: m}, nil
}

// Close releases the database pool, if any.
func (g *gallerySource) Close() {
	if g.pool != nil {
		g.pool.Close()
	}
}

// changed drops the persisted HNSW graph after the gallery was written, so the next
// load rebuilds it from the new descriptors.
func (g *gallerySource) changed(log *zap.Logger) {
	if err := removeIndexFile(g.indexPath); err != nil {
		log.Warn("failed to remove stale HNSW index", zap.String("path", g.indexPath), zap.Error(err))
	}
}

// removeIndexFile deletes the index file. An empty path or a missing file is not an error.
func removeIndexFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove index file: %w", err)
	}
	return nil
}

// writable reports whether enroll can store descriptors.
func (g *gallerySource) writable() bool {
	return g.store != nil || g.path != ""
}

// withThreshold returns the gallery matcher with another distance threshold.
// A non-positive threshold keeps the configured one.
func (g *gallerySource) withThreshold(threshold float64) (*facematch.Matcher, error) {
	if threshold <= 0 || threshold == g.matcher.Threshold() {
		return g.matcher, nil
	}
	m, err := facematch.NewMatcher(g.matcher.LabeledDescriptors(), threshold)
	if err != nil {
		return nil, fmt.Errorf("invalid threshold: %w", err)
	}
	return m, nil
}

// mergeLabeled adds descriptors to the entry with the same label, or appends a new
// entry. With replace the entry's descriptors are dropped first.
func mergeLabeled(m *facematch.Matcher, ld facematch.LabeledDescriptors, replace bool) (*facematch.Matcher, error) {
	if !replace {
		for _, existing := range m.LabeledDescriptors() {
			if existing.Label == ld.Label {
				ld.Descriptors = append(existing.Descriptors, ld.Descriptors...)
				break
			}
		}
	}
	return m.WithLabeled(ld)
}
