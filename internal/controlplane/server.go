// Package controlplane serves the operator endpoints on the metrics listener:
// Prometheus exposition at /metrics and a process snapshot at /stats.
package controlplane

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Info identifies the running service in /stats.
type Info struct {
	Service string
	Version string
	Env     string
}

type Server struct {
	router    *chi.Mux
	startTime time.Time
	info      Info
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
}

// NewServer exposes the metrics collected in gatherer.
func NewServer(gatherer prometheus.Gatherer, info Info, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:    chi.NewRouter(),
		startTime: time.Now(),
		info:      info,
		gatherer:  gatherer,
		logger:    logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}))
	s.router.Get("/stats", s.handleStats)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type StatsResponse struct {
	Service      string      `json:"service"`
	Version      string      `json:"version"`
	Env          string      `json:"env"`
	Uptime       string      `json:"uptime"`
	GoVersion    string      `json:"go_version"`
	NumGoroutine int         `json:"num_goroutine"`
	Memory       MemoryStats `json:"memory"`
}

type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := StatsResponse{
		Service:      s.info.Service,
		Version:      s.info.Version,
		Env:          s.info.Env,
		Uptime:       time.Since(s.startTime).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.logger.Warn("failed to write stats", slog.String("error", err.Error()))
	}
}
