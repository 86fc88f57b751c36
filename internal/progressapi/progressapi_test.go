package progressapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/repofs/seafhttp/internal/progress"
)

func TestServeHTTP_MissingParams(t *testing.T) {
	h := NewHandler(progress.NewRegistry(), nil)
	req := httptest.NewRequest(http.MethodGet, "/upload_progress", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestServeHTTP_UnknownID(t *testing.T) {
	h := NewHandler(progress.NewRegistry(), nil)
	req := httptest.NewRequest(http.MethodGet, "/upload_progress?X-Progress-ID=p1&callback=cb", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestServeHTTP_ReportsSnapshot(t *testing.T) {
	reg := progress.NewRegistry()
	entry := reg.Insert("p1", 100)
	entry.Add(42)

	h := NewHandler(reg, nil)
	req := httptest.NewRequest(http.MethodGet, "/upload_progress?X-Progress-ID=p1&callback=cb", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "cb({") || !strings.Contains(body, `"uploaded": 42`) || !strings.Contains(body, `"length": 100`) {
		t.Fatalf("body = %q", body)
	}
}
