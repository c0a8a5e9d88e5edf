package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/optimus/internal/config"
	"github.com/tjfontaine/optimus/internal/logging"
	"github.com/tjfontaine/optimus/internal/rules/webhook"
	"github.com/tjfontaine/optimus/internal/runtime"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		// Critical startup errors were already logged at FATAL level
		var ce *runtime.CriticalError
		if !errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, err)
		}
		stop()
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "optimus",
		Usage:   "HTTP gateway applying JSON transformation rules",
		Version: config.Version,
		Description: `Serves the transform API:

  GET  /health   liveness probe
  GET  /version  service name and version
  PUT  /         apply rules to the JSON body

Settings come from optimus.yaml, OPTIMUS_* environment variables and the flags below.`,
		Flags: flags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(ctx, cfg)
		},
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   fmt.Sprintf("Path to the YAML config file (default %s when present)", config.DefaultFile),
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to listen on",
		},
		&cli.StringFlag{
			Name:  "env",
			Usage: "Deployment environment (development, staging, production, ...)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (debug, info, warn, error)",
		},
		&cli.StringFlag{
			Name:  "rules-url",
			Usage: "URL of the rules engine",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Address of the Prometheus metrics listener (disabled when empty)",
		},
	}
}

// loadConfig layers explicitly set flags over the file and environment.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	overrides := make(map[string]any)
	if cmd.IsSet("port") {
		overrides["server.port"] = cmd.Int("port")
	}
	stringFlags := map[string]string{
		"env":          "env",
		"log-level":    "log.level",
		"rules-url":    "rules.url",
		"metrics-addr": "metrics.addr",
	}
	for flag, key := range stringFlags {
		if cmd.IsSet(flag) {
			overrides[key] = cmd.String(flag)
		}
	}

	cfg, err := config.Load(config.LoadOptions{Path: cmd.String("config"), Overrides: overrides})
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		JSON:    cfg.Log.JSON,
		Service: cfg.Service.Name,
		Version: cfg.Service.Version,
		Env:     cfg.Env,
	})
	slog.SetDefault(logger)

	engine, err := webhook.New(webhook.Config{
		URL:                  cfg.Rules.URL,
		Timeout:              cfg.Rules.Timeout,
		Retries:              cfg.Rules.Retries,
		Headers:              cfg.Rules.Headers,
		BlockPrivateNetworks: cfg.Rules.BlockPrivateNetworks,
	})
	if err != nil {
		return fmt.Errorf("create rules client: %w", err)
	}

	gw, err := runtime.New(cfg, engine, runtime.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	if _, err := gw.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(gw.Wait)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, stopping gateway")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return gw.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
