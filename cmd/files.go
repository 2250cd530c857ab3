package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/faceproc/internal/faceerr"
	"github.com/kozaktomas/faceproc/internal/facematch"
	"github.com/kozaktomas/faceproc/internal/geometry"
	"github.com/kozaktomas/faceproc/internal/tensor"
)

// readInput reads a file, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is a command line argument
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// parseDescriptors accepts a single descriptor [..], a list [[..], ..] or an object
// with a "descriptors" list.
func parseDescriptors(data []byte) ([]facematch.Descriptor, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty descriptor file: %w", faceerr.ErrMalformedPersistedData)
	}

	if data[0] == '{' {
		var wrapped struct {
			Descriptors []facematch.Descriptor `json:"descriptors"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("invalid descriptor object: %v: %w", err, faceerr.ErrMalformedPersistedData)
		}
		return wrapped.Descriptors, nil
	}

	var list []facematch.Descriptor
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var single facematch.Descriptor
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("invalid descriptors: %v: %w", err, faceerr.ErrMalformedPersistedData)
	}
	return []facematch.Descriptor{single}, nil
}

// readDescriptors reads the descriptors stored in a file.
func readDescriptors(path string) ([]facematch.Descriptor, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	descriptors, err := parseDescriptors(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return descriptors, nil
}

// readTensor reads a tensor from a JSON file {"shape": [..], "data": [..]} or, for any
// other extension, from raw little-endian float32 values with the given shape.
func readTensor(path string, shape []int) (tensor.Tensor, error) {
	data, err := readInput(path)
	if err != nil {
		return tensor.Tensor{}, err
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var t tensor.Tensor
		if err := json.Unmarshal(data, &t); err != nil {
			return tensor.Tensor{}, fmt.Errorf("invalid tensor file %s: %w", path, err)
		}
		if len(shape) > 0 {
			t.Shape = shape
		}
		return tensor.New(t.Shape, t.Data)
	}

	if len(shape) == 0 {
		return tensor.Tensor{}, fmt.Errorf("raw tensor %s needs a shape: %w", path, faceerr.ErrDimensionMismatch)
	}
	return tensor.FromBytes(shape, data)
}

// readBoxes reads a JSON list of [x1, y1, x2, y2] boxes.
func readBoxes(path string) ([]geometry.Box, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	var corners [][]float64
	if err := json.Unmarshal(data, &corners); err != nil {
		return nil, fmt.Errorf("invalid boxes file %s: %w", path, err)
	}
	return toBoxes(corners)
}

func toBoxes(corners [][]float64) ([]geometry.Box, error) {
	boxes := make([]geometry.Box, len(corners))
	for i, c := range corners {
		box, ok := geometry.NewBox(c)
		if !ok {
			return nil, fmt.Errorf("box %d has %d values, want 4: %w", i, len(c), faceerr.ErrDimensionMismatch)
		}
		boxes[i] = box
	}
	return boxes, nil
}

// labelFromPath derives a label from a file name: "jan-novak.json" -> "jan-novak".
func labelFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// readGalleryFile loads a persisted matcher. A missing file is an empty gallery.
func readGalleryFile(path string, threshold float64) (*facematch.Matcher, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if errors.Is(err, os.ErrNotExist) {
		return facematch.NewMatcher(nil, threshold)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read gallery: %w", err)
	}
	m, err := facematch.FromPersisted(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse gallery %s: %w", path, err)
	}
	return m, nil
}

// writeGalleryFile persists a matcher, replacing the file atomically.
func writeGalleryFile(path string, m *facematch.Matcher) error {
	text, err := m.ToPersisted()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".gallery-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary gallery file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write gallery: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write gallery: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace gallery: %w", err)
	}
	return nil
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
