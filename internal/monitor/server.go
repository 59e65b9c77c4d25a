package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the monitor's HTTP status and metrics endpoint.
type Server struct {
	checker    *Checker
	metrics    *Collector
	httpServer *http.Server
	startTime  time.Time
}

// NewServer creates the status server.
func NewServer(c *Checker, m *Collector) *Server {
	return &Server{
		checker:   c,
		metrics:   m,
		startTime: time.Now(),
	}
}

// Start starts the HTTP server on bind:port.
func (s *Server) Start(bind string, port int) error {
	r := mux.NewRouter()

	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/profiles", s.profilesHandler).Methods("GET")
	r.HandleFunc("/profiles/{name}", s.profileHandler).Methods("GET")

	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/ready", s.readyHandler).Methods("GET")

	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf("%s:%d", bind, port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("[monitor] status API listening on %s", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[monitor] server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

type statusResponse struct {
	Uptime   string                   `json:"uptime"`
	Healthy  bool                     `json:"healthy"`
	Profiles map[string]ProfileHealth `json:"profiles"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		Healthy:  s.checker.OverallHealthy(),
		Profiles: s.checker.GetAllStatuses(),
	})
}

func (s *Server) profilesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.checker.GetAllStatuses())
}

func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	ph := s.checker.GetStatus(name)
	if ph.Status == StatusUnknown && ph.LastCheck.IsZero() {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown profile " + name})
		return
	}
	writeJSON(w, http.StatusOK, ph)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.checker.OverallHealthy() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
