package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/rdmsession/internal/testutil/testlog"
)

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	testlog.Start(t)
	s := New("consumerctl", "127.0.0.1:0")
	rec := get(t, s, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "consumerctl" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestStreamsReportsPublishedSnapshot(t *testing.T) {
	testlog.Start(t)
	s := New("providerctl", "127.0.0.1:0")
	if rec := get(t, s, "/streams"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before publish, got %d", rec.Code)
	}

	s.Publish(map[string]any{"streams": []string{"login"}})
	rec := get(t, s, "/streams")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "login") {
		t.Fatalf("snapshot missing: %s", rec.Body.String())
	}
}

func TestMetricsExposesRequestCounters(t *testing.T) {
	testlog.Start(t)
	s := New("consumerctl", "127.0.0.1:0")
	get(t, s, "/health")
	rec := get(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "rdmsession_http_requests_total") {
		t.Fatalf("request counter not exported")
	}
}
