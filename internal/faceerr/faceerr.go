// Package faceerr defines the error kinds shared by the detection and matching packages.
// Callers wrap them with context and test with errors.Is.
package faceerr

import "errors"

var (
	// ErrConfiguration is returned for invalid thresholds, anchor tables or input sizes.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrDimensionMismatch is returned when parallel arrays or vectors differ in length.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInconsistentDescriptorLength is returned when labeled descriptors have different lengths.
	ErrInconsistentDescriptorLength = errors.New("inconsistent descriptor length")

	// ErrMalformedPersistedData is returned when persisted matcher data cannot be parsed.
	ErrMalformedPersistedData = errors.New("malformed persisted data")
)

// IsClientError reports whether err is caused by bad input rather than a failing dependency.
func IsClientError(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrInconsistentDescriptorLength) ||
		errors.Is(err, ErrMalformedPersistedData)
}
