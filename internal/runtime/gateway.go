// Package runtime provides the Gateway struct and lifecycle management
// for the optimus transform gateway.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/optimus/internal/config"
	"github.com/tjfontaine/optimus/internal/controlplane"
	"github.com/tjfontaine/optimus/internal/logging"
	"github.com/tjfontaine/optimus/internal/rules"
	"github.com/tjfontaine/optimus/internal/server"
	"github.com/tjfontaine/optimus/internal/telemetry"
)

// State is the lifecycle state of a Gateway.
type State int

const (
	StateUninitialized State = iota
	StateListening
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateListening:
		return "listening"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CriticalError reports a startup failure the process cannot recover from.
// Addr and Port name the listener that failed, the API or the metrics one.
type CriticalError struct {
	Addr string
	Port int
	Err  error
}

func (e *CriticalError) Error() string {
	return fmt.Sprintf("listen on %s: %v", e.Addr, e.Err)
}

func (e *CriticalError) Unwrap() error {
	return e.Err
}

// Gateway owns the HTTP server serving the request pipeline.
// Start may be called once; a failed start is final.
type Gateway struct {
	cfg    *config.Config
	engine rules.Engine
	logger *slog.Logger

	traceWriter    io.Writer
	tracerShutdown func(context.Context) error

	state         State
	server        *http.Server
	metricsServer *http.Server
	listener      net.Listener
	metricsLn     net.Listener
	group         *errgroup.Group
	mu            sync.RWMutex
}

// New creates a Gateway for cfg that sends transform requests to engine.
// Nothing is bound until Start.
func New(cfg *config.Config, engine rules.Engine, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if engine == nil {
		return nil, errors.New("rules engine required")
	}

	gw := &Gateway{
		cfg:    cfg,
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(gw); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	return gw, nil
}

// Handler builds a fresh request pipeline. Each call returns an independent
// handler with its own metrics registry.
func (g *Gateway) Handler() *server.Pipeline {
	return server.NewPipeline(g.cfg, g.engine, server.WithLogger(g.logger))
}

// Start builds the pipeline, binds the configured port and serves in the
// background. A bind failure is logged at FATAL level and returned as a
// *CriticalError; the gateway is then Failed and will not retry.
func (g *Gateway) Start(ctx context.Context) (*http.Server, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateUninitialized {
		return nil, fmt.Errorf("gateway already started (state %s)", g.state)
	}

	if g.cfg.Tracing.Enabled {
		shutdown, err := telemetry.InitTracer(telemetry.TracerOptions{
			Service: g.cfg.Service.Name,
			Version: g.cfg.Service.Version,
			Env:     g.cfg.Env,
			Writer:  g.traceWriter,
		}, g.logger)
		if err != nil {
			return nil, g.fail(ctx, g.cfg.Addr(), fmt.Errorf("init tracing: %w", err))
		}
		g.tracerShutdown = shutdown
	}

	pipeline := g.Handler()

	ln, err := net.Listen("tcp", g.cfg.Addr())
	if err != nil {
		return nil, g.fail(ctx, g.cfg.Addr(), err)
	}

	var metricsLn net.Listener
	if g.cfg.Metrics.Addr != "" {
		metricsLn, err = net.Listen("tcp", g.cfg.Metrics.Addr)
		if err != nil {
			ln.Close()
			return nil, g.fail(ctx, g.cfg.Metrics.Addr, fmt.Errorf("metrics listener: %w", err))
		}
	}

	errorLog := slog.NewLogLogger(g.logger.Handler(), slog.LevelError)
	g.server = &http.Server{
		Handler:      pipeline,
		ReadTimeout:  g.cfg.Server.ReadTimeout,
		WriteTimeout: g.cfg.Server.WriteTimeout,
		IdleTimeout:  g.cfg.Server.IdleTimeout,
		ErrorLog:     errorLog,
	}
	g.listener = ln
	g.group = &errgroup.Group{}
	g.group.Go(func() error {
		return g.serve(g.server, ln, "api")
	})

	if metricsLn != nil {
		admin := controlplane.NewServer(pipeline.Registry(), controlplane.Info{
			Service: g.cfg.Service.Name,
			Version: g.cfg.Service.Version,
			Env:     g.cfg.Env,
		}, g.logger)
		g.metricsServer = &http.Server{
			Handler:     admin,
			ReadTimeout: g.cfg.Server.ReadTimeout,
			ErrorLog:    errorLog,
		}
		g.metricsLn = metricsLn
		g.group.Go(func() error {
			return g.serve(g.metricsServer, metricsLn, "metrics")
		})
	}

	g.state = StateListening
	g.logger.InfoContext(ctx, "HTTP server listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("env", g.cfg.Env))
	if metricsLn != nil {
		g.logger.InfoContext(ctx, "metrics server listening", slog.String("addr", metricsLn.Addr().String()))
	}

	return g.server, nil
}

// fail moves the gateway to Failed and reports err on addr as critical.
// Caller holds mu.
func (g *Gateway) fail(ctx context.Context, addr string, err error) error {
	g.state = StateFailed
	ce := &CriticalError{Addr: addr, Port: portOf(addr), Err: err}
	g.logger.Log(ctx, logging.LevelFatal, "server failed to start",
		slog.String("addr", ce.Addr),
		slog.Int("port", ce.Port),
		slog.String("error", err.Error()))
	if g.tracerShutdown != nil {
		g.tracerShutdown(ctx)
		g.tracerShutdown = nil
	}
	return ce
}

// portOf extracts the port of a host:port listen address, 0 if there is none.
func portOf(addr string) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return 0
	}
	return n
}

func (g *Gateway) serve(srv *http.Server, ln net.Listener, name string) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		g.logger.Error("server error",
			slog.String("server", name),
			slog.String("error", err.Error()))
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

// Shutdown gracefully stops the servers and flushes traces.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateListening {
		return nil
	}
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.server.Shutdown(ctx); err != nil {
		g.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if g.metricsServer != nil {
		if err := g.metricsServer.Shutdown(ctx); err != nil {
			g.logger.Error("failed to shutdown metrics server", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if g.tracerShutdown != nil {
		if err := g.tracerShutdown(ctx); err != nil {
			g.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	g.state = StateStopped
	g.logger.Info("gateway shutdown complete")
	return errors.Join(errs...)
}

// Wait blocks until every server stops and returns the first serve error.
// It returns immediately if the gateway never started listening.
func (g *Gateway) Wait() error {
	g.mu.RLock()
	group := g.group
	g.mu.RUnlock()

	if group == nil {
		return nil
	}
	return group.Wait()
}

// State reports the lifecycle state.
func (g *Gateway) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Addr is the bound API address, nil before a successful Start.
func (g *Gateway) Addr() net.Addr {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// MetricsAddr is the bound metrics address, nil when metrics are disabled.
func (g *Gateway) MetricsAddr() net.Addr {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.metricsLn == nil {
		return nil
	}
	return g.metricsLn.Addr()
}
