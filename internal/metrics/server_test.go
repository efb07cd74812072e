package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServerHealthHandlerReportsDefaultHealthyStatus(t *testing.T) {
	s := NewServer(":0", "/metrics", "/healthz", false)

	rec := httptest.NewRecorder()
	s.probeHandler(probeHealth)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with no health check installed", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestServerHealthHandlerReflectsInstalledCheck(t *testing.T) {
	s := NewServer(":0", "/metrics", "/healthz", false)
	s.SetHealthCheck(func() HealthStatus {
		return HealthStatus{Status: "unhealthy"}
	})

	rec := httptest.NewRecorder()
	s.probeHandler(probeHealth)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 for an unhealthy check", rec.Code)
	}
}

func TestServerLivenessHandlerFollowsSetHealthy(t *testing.T) {
	s := NewServer(":0", "/metrics", "/healthz", false)

	rec := httptest.NewRecorder()
	s.probeHandler(probeLiveness)(rec, httptest.NewRequest(http.MethodGet, "/healthz/live", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("liveness = %d %q, want 200 OK before SetHealthy(false)", rec.Code, rec.Body.String())
	}

	s.SetHealthy(false)
	rec = httptest.NewRecorder()
	s.probeHandler(probeLiveness)(rec, httptest.NewRequest(http.MethodGet, "/healthz/live", nil))
	if rec.Code != http.StatusServiceUnavailable || rec.Body.String() != "NOT OK" {
		t.Errorf("liveness = %d %q, want 503 NOT OK after SetHealthy(false)", rec.Code, rec.Body.String())
	}
}

func TestServerReadinessHandlerAcceptsDegraded(t *testing.T) {
	s := NewServer(":0", "/metrics", "/healthz", false)

	cases := []struct {
		status string
		ready  bool
	}{
		{"healthy", true},
		{"degraded", true},
		{"unhealthy", false},
	}
	for _, c := range cases {
		s.SetHealthCheck(func() HealthStatus { return HealthStatus{Status: c.status} })
		rec := httptest.NewRecorder()
		s.probeHandler(probeReadiness)(rec, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))

		wantCode := http.StatusServiceUnavailable
		wantBody := "NOT READY"
		if c.ready {
			wantCode = http.StatusOK
			wantBody = "READY"
		}
		if rec.Code != wantCode || rec.Body.String() != wantBody {
			t.Errorf("status=%q: readiness = %d %q, want %d %q", c.status, rec.Code, rec.Body.String(), wantCode, wantBody)
		}
	}
}

func TestServerRegisterCollectorRejectsDuplicate(t *testing.T) {
	s := NewServer(":0", "/metrics", "/healthz", false)
	m := New(s.Registry())

	if err := s.RegisterCollector(m.FlowsActive); err == nil {
		t.Error("expected an error re-registering an already-registered collector")
	}
}

func TestServerStartThenStop(t *testing.T) {
	s := NewServer("127.0.0.1:0", "/metrics", "/healthz", true)
	if err := s.Start(nil); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	s.Stop()
}
