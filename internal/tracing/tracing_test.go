package tracing

import (
	"errors"
	"net/http/httptest"
	"testing"
)

func TestStartRequest_TagsRouteAndMethod(t *testing.T) {
	tr := New(WithTracerName("test"))

	r := httptest.NewRequest("POST", "/upload/tok1", nil)
	ctx, span := tr.StartRequest(r, "upload")
	if ctx == nil {
		t.Fatalf("expected non-nil context")
	}
	if span == nil {
		t.Fatalf("expected non-nil span")
	}
	End(span, nil)
}

func TestEnd_RecordsError(t *testing.T) {
	tr := New()

	r := httptest.NewRequest("POST", "/update/tok1", nil)
	_, span := tr.StartRequest(r, "update")

	// With no SDK/exporter configured, the global tracer hands back a
	// no-op span; End must still be safe to call with a non-nil error.
	End(span, errors.New("boom"))
}
