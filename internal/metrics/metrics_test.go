package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNew_RegistersAgainstGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(WithRegistry(reg), WithNamespace("test"))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected collectors registered against reg")
	}

	done := m.ObserveRequest("/upload")
	done("success")

	mfs, err = reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "test_requests_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected test_requests_total among gathered metrics")
	}
}
