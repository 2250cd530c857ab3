package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed detectors.yaml
var detectorsYAML []byte

type Config struct {
	Matcher   MatcherConfig
	Database  DatabaseConfig
	Web       WebConfig
	Log       LogConfig
	Detectors DetectorsConfig
}

type MatcherConfig struct {
	DistanceThreshold float64 // defaults to 0.6
	GalleryPath       string  // persisted matcher JSON used when no database is configured
	IndexPath         string  // path to persist the HNSW index (optional, rebuilt when missing)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type WebConfig struct {
	Host           string   // defaults to 0.0.0.0
	Port           int      // defaults to 8085
	AllowedOrigins []string // CORS origins besides localhost, from WEB_ALLOWED_ORIGINS
}

type LogConfig struct {
	Debug bool
}

// DetectorsConfig holds the detector presets shipped with the binary.
type DetectorsConfig struct {
	Default string                    `yaml:"default"`
	Presets map[string]DetectorPreset `yaml:"presets"`
}

// DetectorPreset describes one detector network and its post-processing defaults.
type DetectorPreset struct {
	Kind           string      `yaml:"kind" json:"kind"`
	BoxSize        int         `yaml:"box_size" json:"boxSize,omitempty"`
	InputSize      int         `yaml:"input_size" json:"inputSize"`
	ScoreThreshold float64     `yaml:"score_threshold" json:"scoreThreshold"`
	IoUThreshold   float64     `yaml:"iou_threshold" json:"iouThreshold"`
	MaxDetections  int         `yaml:"max_detections" json:"maxDetections,omitempty"`
	Anchors        [][]float64 `yaml:"anchors" json:"anchors,omitempty"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a non-negative float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return b
}

// ParseDetectors parses detector presets from YAML.
func ParseDetectors(data []byte) (DetectorsConfig, error) {
	var detectors DetectorsConfig
	if err := yaml.Unmarshal(data, &detectors); err != nil {
		return DetectorsConfig{}, fmt.Errorf("failed to parse detector presets: %w", err)
	}
	if _, ok := detectors.Presets[detectors.Default]; !ok {
		return DetectorsConfig{}, fmt.Errorf("default detector %q is not a preset", detectors.Default)
	}
	return detectors, nil
}

func Load() *Config {
	detectors, err := ParseDetectors(detectorsYAML)
	if err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to load embedded detectors.yaml: " + err.Error())
	}
	if name := os.Getenv("DETECTOR"); name != "" {
		if _, ok := detectors.Presets[name]; ok {
			detectors.Default = name
		}
	}

	return &Config{
		Matcher: MatcherConfig{
			DistanceThreshold: envFloat("MATCH_DISTANCE_THRESHOLD", 0.6),
			GalleryPath:       os.Getenv("GALLERY_PATH"),
			IndexPath:         os.Getenv("HNSW_INDEX_PATH"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Web: WebConfig{
			Host: envString("WEB_HOST", "0.0.0.0"),
			Port: envInt("WEB_PORT", 8085),

			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Debug: envBool("LOG_DEBUG"),
		},
		Detectors: detectors,
	}
}

// Detector returns the named preset, or the default preset for an empty name.
func (c *Config) Detector(name string) (DetectorPreset, bool) {
	if name == "" {
		name = c.Detectors.Default
	}
	preset, ok := c.Detectors.Presets[name]
	return preset, ok
}

// DetectorNames returns the preset names in sorted order.
func (c *Config) DetectorNames() []string {
	names := make([]string, 0, len(c.Detectors.Presets))
	for name := range c.Detectors.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
