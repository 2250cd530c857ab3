package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/faceproc/internal/config"
	"github.com/kozaktomas/faceproc/internal/database/mock"
	"github.com/kozaktomas/faceproc/internal/facematch"
)

// testConfig returns the configuration with the embedded detector presets
func testConfig() *config.Config {
	return config.Load()
}

// testMatcher creates a small two-label matcher
func testMatcher(t *testing.T) *facematch.Matcher {
	t.Helper()
	m, err := facematch.NewMatcher([]facematch.LabeledDescriptors{
		{Label: "alice", Descriptors: []facematch.Descriptor{{1, 0, 0}, {0.9, 0.1, 0}}},
		{Label: "bob", Descriptors: []facematch.Descriptor{{0, 1, 0}}},
	}, facematch.DefaultDistanceThreshold)
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}
	return m
}

// testStoreGallery creates a writable gallery backed by a mock store holding the test matcher
func testStoreGallery(t *testing.T) (*Gallery, *mock.MockDescriptorStore) {
	t.Helper()
	store := mock.NewMockDescriptorStore()
	store.AddDescriptor("alice", []float32{1, 0, 0})
	store.AddDescriptor("alice", []float32{0.9, 0.1, 0})
	store.AddDescriptor("bob", []float32{0, 1, 0})
	return NewGallery(testMatcher(t), store), store
}

// jsonRequest creates a request with a JSON body
func jsonRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
