package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBatchesTotal(t *testing.T) {
	before := testutil.ToFloat64(BatchesTotal.WithLabelValues("failed"))
	BatchesTotal.WithLabelValues("failed").Inc()
	if got := testutil.ToFloat64(BatchesTotal.WithLabelValues("failed")); got != before+1 {
		t.Errorf("failed batches = %v, want %v", got, before+1)
	}
}

func TestPush(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	FogRiskStations.WithLabelValues("3").Set(7)
	if err := Push(srv.URL); err != nil {
		t.Fatalf("Push: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if path != "/metrics/job/fogwatch" {
		t.Errorf("path = %s", path)
	}
	if !strings.Contains(body, "fogwatch_fog_risk_stations") {
		t.Error("pushed body missing fog risk gauge")
	}
}

func TestPush_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := Push(srv.URL); err == nil {
		t.Error("expected error from failing gateway")
	}
}
