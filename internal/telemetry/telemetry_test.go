package telemetry

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"portfolio/internal/config"
)

func TestSetup_DisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown failed: %v", err)
	}
}

func TestSetup_StdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: true, ServiceName: "test"}, &buf)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	h := Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), "test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected spans to be exported")
	}
}

func TestStripScheme(t *testing.T) {
	if got := stripScheme("http://collector:4318/"); got != "collector:4318" {
		t.Fatalf("unexpected %q", got)
	}
}
