package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/faceproc/internal/facematch"
)

func TestLabelsHandler_List_Store(t *testing.T) {
	gallery, _ := testStoreGallery(t)
	handler := NewLabelsHandler(gallery)

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/labels", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp LabelsResponse
	parseJSONResponse(t, recorder, &resp)
	if len(resp.Labels) != 2 || resp.Labels[0].Label != "alice" || resp.Labels[0].Count != 2 {
		t.Errorf("unexpected labels %+v", resp.Labels)
	}
	if resp.Descriptors != 3 {
		t.Errorf("expected 3 descriptors, got %d", resp.Descriptors)
	}
}

func TestLabelsHandler_List_Matcher(t *testing.T) {
	handler := NewLabelsHandler(NewGallery(testMatcher(t), nil))

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/labels", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp LabelsResponse
	parseJSONResponse(t, recorder, &resp)
	if len(resp.Labels) != 2 || resp.Labels[1].Label != "bob" || resp.Labels[1].Dim != 3 {
		t.Errorf("unexpected labels %+v", resp.Labels)
	}
}

func TestLabelsHandler_List_StoreError(t *testing.T) {
	gallery, store := testStoreGallery(t)
	store.LabelsError = errors.New("connection refused")
	handler := NewLabelsHandler(gallery)

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/labels", nil))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "failed to list labels")
}

func TestLabelsHandler_Get(t *testing.T) {
	handler := NewLabelsHandler(NewGallery(testMatcher(t), nil))

	req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/labels/Alice", nil), map[string]string{"label": "Alice"})
	recorder := httptest.NewRecorder()
	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var ld facematch.LabeledDescriptors
	parseJSONResponse(t, recorder, &ld)
	if len(ld.Descriptors) != 2 {
		t.Errorf("expected 2 descriptors, got %+v", ld)
	}

	req = requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/labels/carol", nil), map[string]string{"label": "carol"})
	recorder = httptest.NewRecorder()
	handler.Get(recorder, req)
	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestLabelsHandler_Enroll(t *testing.T) {
	gallery, store := testStoreGallery(t)
	handler := NewLabelsHandler(gallery)

	body := `{"label":" carol ","descriptors":[[0,0,1],[0,0.1,0.9]]}`
	recorder := httptest.NewRecorder()
	handler.Enroll(recorder, jsonRequest(t, http.MethodPost, "/api/v1/labels", body))

	assertStatusCode(t, recorder, http.StatusCreated)
	var resp EnrollResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Label != "carol" || len(resp.IDs) != 2 || resp.Total != 2 {
		t.Errorf("unexpected response %+v", resp)
	}

	stored, err := store.GetByLabel(context.Background(), "carol")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 || stored[0].Source != "api" {
		t.Errorf("unexpected stored descriptors %+v", stored)
	}

	match, err := gallery.Matcher().FindBestMatch(facematch.Descriptor{0, 0, 1})
	if err != nil {
		t.Fatal(err)
	}
	if match.Label != "carol" {
		t.Errorf("expected reloaded matcher to know carol, got %s", match)
	}
}

func TestLabelsHandler_Enroll_Replace(t *testing.T) {
	gallery, _ := testStoreGallery(t)
	handler := NewLabelsHandler(gallery)

	body := `{"label":"alice","descriptors":[[0.5,0.5,0]],"replace":true,"source":"portrait.jpg"}`
	recorder := httptest.NewRecorder()
	handler.Enroll(recorder, jsonRequest(t, http.MethodPost, "/api/v1/labels", body))

	assertStatusCode(t, recorder, http.StatusCreated)
	var resp EnrollResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Total != 1 {
		t.Errorf("expected replaced label to hold 1 descriptor, got %d", resp.Total)
	}
}

func TestLabelsHandler_Enroll_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"invalid json", `{"label":`, http.StatusBadRequest},
		{"blank label", `{"label":"  ","descriptors":[[1,0,0]]}`, http.StatusBadRequest},
		{"no descriptors", `{"label":"carol","descriptors":[]}`, http.StatusBadRequest},
		{"mixed lengths", `{"label":"carol","descriptors":[[1,0,0],[1,0]]}`, http.StatusBadRequest},
		{"gallery length", `{"label":"carol","descriptors":[[1,0]]}`, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gallery, _ := testStoreGallery(t)
			handler := NewLabelsHandler(gallery)

			recorder := httptest.NewRecorder()
			handler.Enroll(recorder, jsonRequest(t, http.MethodPost, "/api/v1/labels", tc.body))
			assertStatusCode(t, recorder, tc.wantStatus)
		})
	}
}

func TestLabelsHandler_Enroll_SaveError(t *testing.T) {
	gallery, store := testStoreGallery(t)
	store.SaveError = errors.New("disk full")
	handler := NewLabelsHandler(gallery)

	recorder := httptest.NewRecorder()
	handler.Enroll(recorder, jsonRequest(t, http.MethodPost, "/api/v1/labels", `{"label":"carol","descriptors":[[0,0,1]]}`))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "failed to save descriptors")
}

func TestLabelsHandler_ReadOnly(t *testing.T) {
	handler := NewLabelsHandler(NewGallery(testMatcher(t), nil))

	tests := []struct {
		name    string
		handler http.HandlerFunc
		req     *http.Request
	}{
		{"enroll", handler.Enroll, jsonRequest(t, http.MethodPost, "/api/v1/labels", `{"label":"carol","descriptors":[[0,0,1]]}`)},
		{"delete", handler.Delete, requestWithChiParams(httptest.NewRequest(http.MethodDelete, "/api/v1/labels/bob", nil), map[string]string{"label": "bob"})},
		{"delete descriptor", handler.DeleteDescriptor, httptest.NewRequest(http.MethodDelete, "/api/v1/descriptors/x", nil)},
		{"import", handler.Import, jsonRequest(t, http.MethodPut, "/api/v1/matcher", `{}`)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			tc.handler(recorder, tc.req)
			assertStatusCode(t, recorder, http.StatusServiceUnavailable)
			assertJSONError(t, recorder, errStoreUnavailable)
		})
	}
}

func TestLabelsHandler_Delete(t *testing.T) {
	gallery, store := testStoreGallery(t)
	handler := NewLabelsHandler(gallery)

	req := requestWithChiParams(httptest.NewRequest(http.MethodDelete, "/api/v1/labels/alice", nil), map[string]string{"label": "alice"})
	recorder := httptest.NewRecorder()
	handler.Delete(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var resp map[string]any
	parseJSONResponse(t, recorder, &resp)
	if resp["deleted"] != float64(2) {
		t.Errorf("expected 2 deleted descriptors, got %v", resp["deleted"])
	}
	if count, _ := store.Count(context.Background()); count != 1 {
		t.Errorf("expected 1 remaining descriptor, got %d", count)
	}
	if labels := gallery.Matcher().Labels(); len(labels) != 1 || labels[0] != "bob" {
		t.Errorf("expected reloaded matcher with bob only, got %v", labels)
	}

	recorder = httptest.NewRecorder()
	handler.Delete(recorder, req)
	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestLabelsHandler_DeleteDescriptor(t *testing.T) {
	gallery, store := testStoreGallery(t)
	id := store.AddDescriptor("carol", []float32{0, 0, 1})
	handler := NewLabelsHandler(gallery)

	req := requestWithChiParams(httptest.NewRequest(http.MethodDelete, "/api/v1/descriptors/"+id.String(), nil), map[string]string{"id": id.String()})
	recorder := httptest.NewRecorder()
	handler.DeleteDescriptor(recorder, req)

	assertStatusCode(t, recorder, http.StatusNoContent)
	if count, _ := store.Count(context.Background()); count != 3 {
		t.Errorf("expected 3 remaining descriptors, got %d", count)
	}

	req = requestWithChiParams(httptest.NewRequest(http.MethodDelete, "/api/v1/descriptors/nope", nil), map[string]string{"id": "nope"})
	recorder = httptest.NewRecorder()
	handler.DeleteDescriptor(recorder, req)
	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestLabelsHandler_Matcher(t *testing.T) {
	handler := NewLabelsHandler(NewGallery(testMatcher(t), nil))

	recorder := httptest.NewRecorder()
	handler.Matcher(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/matcher", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	m, err := facematch.FromPersisted(recorder.Body.String())
	if err != nil {
		t.Fatalf("response is not a persisted matcher: %v", err)
	}
	if m.Len() != 2 || m.Threshold() != facematch.DefaultDistanceThreshold {
		t.Errorf("unexpected matcher: %d entries, threshold %v", m.Len(), m.Threshold())
	}
}

func TestLabelsHandler_Import(t *testing.T) {
	gallery, store := testStoreGallery(t)
	handler := NewLabelsHandler(gallery)

	body := `{"distanceThreshold":0.5,"labeledDescriptors":[{"label":"bob","descriptors":[[0,0.9,0.1]]},{"label":"dave","descriptors":[[0.5,0,0.5]]}]}`
	recorder := httptest.NewRecorder()
	handler.Import(recorder, jsonRequest(t, http.MethodPut, "/api/v1/matcher", body))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp map[string]int
	parseJSONResponse(t, recorder, &resp)
	if resp["imported"] != 2 || resp["labels"] != 3 {
		t.Errorf("unexpected response %v", resp)
	}
	bob, _ := store.GetByLabel(context.Background(), "bob")
	if len(bob) != 1 || bob[0].Descriptor[2] != 0.1 {
		t.Errorf("expected bob to be replaced, got %+v", bob)
	}
}

func TestLabelsHandler_Import_Malformed(t *testing.T) {
	gallery, _ := testStoreGallery(t)
	handler := NewLabelsHandler(gallery)

	body := `{"distanceThreshold":0.5,"labeledDescriptors":[{"label":"bob","descriptors":[[0,"x",0]]}]}`
	recorder := httptest.NewRecorder()
	handler.Import(recorder, jsonRequest(t, http.MethodPut, "/api/v1/matcher", body))

	assertStatusCode(t, recorder, http.StatusBadRequest)
	var resp map[string]string
	parseJSONResponse(t, recorder, &resp)
	if !strings.Contains(resp["error"], "malformed") {
		t.Errorf("expected a malformed data error, got %q", resp["error"])
	}
}
