// Package server implements the optimus request pipeline.
//
// Every request runs through a fixed sequence of stages:
//
//  1. health       /health answers 200 with an empty body, nothing else runs
//  2. metrics      Prometheus RED metrics and an OpenTelemetry span
//  3. access log   request id plus one structured line per request
//  4. body parser  JSON bodies are decoded, malformed ones are a 400
//  5. dispatch     GET /version, PUT / (rules engine), everything else 404
//  6. capture      errors from stages 4-5 are logged at error level
//  7. respond      errors become a status code and a plain text message
//
// Stages 6 and 7 are only reached through the error path. A panic in any stage
// after health is recovered and answered as an internal error.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tjfontaine/optimus/internal/config"
	"github.com/tjfontaine/optimus/internal/rules"
)

// Pipeline is the HTTP handler for the gateway. It holds no per-request state
// and is safe for concurrent use.
type Pipeline struct {
	cfg      *config.Config
	engine   rules.Engine
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *Metrics
	router   *chi.Mux
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used by the access log and error stages.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRegistry registers pipeline metrics with reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(p *Pipeline) {
		if reg != nil {
			p.registry = reg
		}
	}
}

// NewPipeline assembles the stages. It only constructs objects, so it can be
// called repeatedly; each call returns an independent pipeline with its own
// metrics registry.
func NewPipeline(cfg *config.Config, engine rules.Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry == nil {
		p.registry = prometheus.NewRegistry()
	}
	p.metrics = NewMetrics(p.registry, cfg.Service.Name, cfg.Env)

	r := chi.NewRouter()
	for _, stage := range p.stages() {
		r.Use(stage)
	}

	r.Get("/version", p.handle(p.handleVersion))
	r.Put("/", p.handle(p.handleTransform))

	notFound := p.handle(p.handleNotFound)
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	p.router = r
	return p
}

// stages lists stages 1-4 outermost first. Order is observable: health must
// bypass everything, and body parsing must run before routing.
func (p *Pipeline) stages() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HealthMiddleware,
		p.recoverMiddleware,
		p.metrics.Middleware,
		RequestIDMiddleware,
		LoggingMiddleware(p.logger),
		p.recoverMiddleware,
		p.bodyParser,
	}
}

func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.router.ServeHTTP(w, r)
}

// Registry exposes the registry holding the pipeline metrics.
func (p *Pipeline) Registry() *prometheus.Registry {
	return p.registry
}
