package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves Prometheus metrics and JSON health/liveness/readiness
// endpoints for the NSCC agent.
type Server struct {
	listen      string
	metricsPath string
	healthPath  string
	enablePprof bool

	httpServer *http.Server
	registry   *prometheus.Registry

	healthy     int32
	healthCheck func() HealthStatus

	mu sync.RWMutex
}

// HealthStatus is the JSON body served at healthPath.
type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version"`
	Uptime     time.Duration              `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth is one subsystem's health entry in HealthStatus.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewServer creates a metrics/health server with its own registry, so
// it never shares state with prometheus's default global registry.
func NewServer(listen, metricsPath, healthPath string, enablePprof bool) *Server {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		listen:      listen,
		metricsPath: metricsPath,
		healthPath:  healthPath,
		enablePprof: enablePprof,
		healthy:     1,
		registry:    registry,
	}
}

// Registry returns the server's private registry, for New(registry) and
// RegisterCollector.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// RegisterCollector registers a custom collector.
func (s *Server) RegisterCollector(c prometheus.Collector) error {
	return s.registry.Register(c)
}

// MustRegisterCollector registers a custom collector, panicking on
// failure.
func (s *Server) MustRegisterCollector(c prometheus.Collector) {
	s.registry.MustRegister(c)
}

// SetHealthCheck installs the function consulted by the health and
// readiness endpoints.
func (s *Server) SetHealthCheck(fn func() HealthStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthCheck = fn
}

// Start begins serving in the background. It returns once the listener
// goroutine has been launched; startup errors surface through stderr
// since the process must keep running even if the metrics port fails.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc(s.healthPath, s.probeHandler(probeHealth))
	mux.HandleFunc(s.healthPath+"/live", s.probeHandler(probeLiveness))
	mux.HandleFunc(s.healthPath+"/ready", s.probeHandler(probeReadiness))

	mux.Handle(s.metricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          s.registry,
	}))

	if s.enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	s.httpServer = &http.Server{
		Addr:         s.listen,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}
	}()

	return nil
}

// probeKind selects which of the three endpoints probeHandler renders.
// The three probes only ever differed in what they read (the atomic
// liveness flag vs. the health-check callback) and how they render a
// pass/fail verdict (JSON body vs. a bare status code and text line), so
// one handler parameterized on kind replaces the three near-duplicates.
type probeKind int

const (
	probeHealth probeKind = iota
	probeLiveness
	probeReadiness
)

// currentStatus reads the installed health check, or a bare healthy stub
// if none has been set via SetHealthCheck.
func (s *Server) currentStatus() HealthStatus {
	s.mu.RLock()
	healthCheck := s.healthCheck
	s.mu.RUnlock()

	if healthCheck != nil {
		return healthCheck()
	}
	return HealthStatus{Status: "healthy", Timestamp: time.Now()}
}

func writeVerdict(w http.ResponseWriter, ok bool, okBody, failBody string) {
	if ok {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(okBody))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(failBody))
}

// probeHandler builds the endpoint for one probeKind. Liveness answers
// from the flag SetHealthy toggles and never touches the health check;
// health and readiness both consult currentStatus, differing only in
// which statuses count as passing and how the answer is rendered.
func (s *Server) probeHandler(kind probeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch kind {
		case probeLiveness:
			writeVerdict(w, atomic.LoadInt32(&s.healthy) == 1, "OK", "NOT OK")
		case probeReadiness:
			status := s.currentStatus()
			ready := status.Status == "healthy" || status.Status == "degraded"
			writeVerdict(w, ready, "READY", "NOT READY")
		default:
			status := s.currentStatus()
			w.Header().Set("Content-Type", "application/json")
			if status.Status != "healthy" {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			json.NewEncoder(w).Encode(status)
		}
	}
}

// SetHealthy sets the liveness flag the probeLiveness handler consults.
func (s *Server) SetHealthy(healthy bool) {
	if healthy {
		atomic.StoreInt32(&s.healthy, 1)
	} else {
		atomic.StoreInt32(&s.healthy, 0)
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
}
