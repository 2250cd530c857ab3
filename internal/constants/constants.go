// Package constants provides shared constants used across the codebase.
package constants

// Request limits
const (
	// MaxRequestSize is the maximum accepted JSON request body in bytes (64MB).
	// SSD outputs for 5118 reference boxes are the largest payloads.
	MaxRequestSize = 64 << 20

	// MaxBatchDescriptors is the maximum number of descriptors matched or enrolled per request
	MaxBatchDescriptors = 10000
)

// Nearest neighbor constants
const (
	// DefaultNearestLimit is the default number of neighbors returned by a nearest search
	DefaultNearestLimit = 10

	// MaxNearestLimit caps the neighbors returned by a nearest search
	MaxNearestLimit = 1000
)

// Processing constants
const (
	// DefaultConcurrency is the default number of parallel workers for batch matching
	DefaultConcurrency = 4
)

// Descriptor sources recorded with enrolled descriptors
const (
	// SourceAPI marks descriptors enrolled through the web API
	SourceAPI = "api"

	// SourceCLI marks descriptors enrolled with the enroll command
	SourceCLI = "cli"
)
