//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceproc/internal/config"
	"github.com/kozaktomas/faceproc/internal/database"
	"github.com/kozaktomas/faceproc/internal/facematch"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := Connect(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to connect: %v", err)
	}

	if _, err := pool.Migrate(ctx, zap.NewNop()); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func descriptor(dim int, offset float32) []float32 {
	d := make([]float32, dim)
	for i := range d {
		d[i] = float32(i)/float32(dim) + offset
	}
	return d
}

func TestDescriptorRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewDescriptorRepository(pool)

	t.Run("SaveAndList", func(t *testing.T) {
		ids, err := repo.Save(ctx, []database.StoredDescriptor{
			{Label: "alice", Descriptor: descriptor(128, 0), Source: "alice.jpg", BBox: []float64{10, 20, 110, 140}, DetScore: 0.97},
			{Label: "bob", Descriptor: descriptor(128, 0.5)},
			{Label: "alice", Descriptor: descriptor(128, 0.01)},
		})
		if err != nil {
			t.Fatalf("Failed to save descriptors: %v", err)
		}
		if len(ids) != 3 {
			t.Fatalf("Expected 3 IDs, got %d", len(ids))
		}

		got, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("Failed to list descriptors: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("Expected 3 descriptors, got %d", len(got))
		}
		// Both alice descriptors come before bob.
		if got[0].Label != "alice" || got[1].Label != "alice" || got[2].Label != "bob" {
			t.Errorf("Unexpected order: %s, %s, %s", got[0].Label, got[1].Label, got[2].Label)
		}
		if got[0].Source != "alice.jpg" || len(got[0].BBox) != 4 || got[0].DetScore != 0.97 {
			t.Errorf("Metadata not round-tripped: %+v", got[0])
		}
		if got[0].Dim != 128 || len(got[0].Descriptor) != 128 {
			t.Errorf("Expected 128 dimensions, got %d", len(got[0].Descriptor))
		}
	})

	t.Run("Labels", func(t *testing.T) {
		labels, err := repo.Labels(ctx)
		if err != nil {
			t.Fatalf("Failed to list labels: %v", err)
		}
		if len(labels) != 2 || labels[0].Label != "alice" || labels[0].Count != 2 {
			t.Errorf("Unexpected labels: %+v", labels)
		}
	})

	t.Run("FindNearest", func(t *testing.T) {
		nearest, err := repo.FindNearest(ctx, descriptor(128, 0.49), 2)
		if err != nil {
			t.Fatalf("Failed to find nearest: %v", err)
		}
		if len(nearest) != 2 {
			t.Fatalf("Expected 2 results, got %d", len(nearest))
		}
		if nearest[0].Label != "bob" {
			t.Errorf("Expected bob first, got %s", nearest[0].Label)
		}
		if nearest[1].Distance < nearest[0].Distance {
			t.Error("Distances not sorted")
		}
	})

	t.Run("LoadMatcher", func(t *testing.T) {
		m, err := database.LoadMatcher(ctx, repo, facematch.DefaultDistanceThreshold)
		if err != nil {
			t.Fatalf("Failed to load matcher: %v", err)
		}
		match, err := m.FindBestMatch(descriptor(128, 0.005))
		if err != nil {
			t.Fatalf("Failed to match: %v", err)
		}
		if match.Label != "alice" {
			t.Errorf("Expected alice, got %s", match)
		}
	})

	t.Run("DeleteLabel", func(t *testing.T) {
		n, err := repo.DeleteLabel(ctx, "alice")
		if err != nil {
			t.Fatalf("Failed to delete label: %v", err)
		}
		if n != 2 {
			t.Errorf("Expected 2 deleted, got %d", n)
		}
		count, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 1 {
			t.Errorf("Expected 1, got %d", count)
		}
	})

	t.Run("RejectsMixedLengths", func(t *testing.T) {
		_, err := repo.Save(ctx, []database.StoredDescriptor{
			{Label: "x", Descriptor: descriptor(4, 0)},
			{Label: "x", Descriptor: descriptor(5, 0)},
		})
		if err == nil {
			t.Error("Expected error for mixed descriptor lengths")
		}
	})
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	applied, err := pool.AppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}

	expectedMigrations := []string{
		"001_descriptors.sql",
	}

	if len(applied) != len(expectedMigrations) {
		t.Errorf("Expected %d migrations, got %d", len(expectedMigrations), len(applied))
	}

	for i, expected := range expectedMigrations {
		if i < len(applied) && applied[i] != expected {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, expected, applied[i])
		}
	}

	n, err := pool.Migrate(ctx, zap.NewNop())
	if err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Second run applied %d migrations, want 0", n)
	}
}
