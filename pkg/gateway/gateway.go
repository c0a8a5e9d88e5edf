// Package gateway provides the public API for embedding the optimus gateway.
// This is the stable API for external consumers.
package gateway

import (
	"github.com/tjfontaine/optimus/internal/config"
	"github.com/tjfontaine/optimus/internal/rules"
	"github.com/tjfontaine/optimus/internal/rules/webhook"
	"github.com/tjfontaine/optimus/internal/runtime"
	"github.com/tjfontaine/optimus/internal/server"
)

// Gateway owns the HTTP server lifecycle.
// See internal/runtime.Gateway for full documentation.
type Gateway = runtime.Gateway

// Option is a functional option for configuring a Gateway.
type Option = runtime.Option

// CriticalError is returned by Start when the port cannot be bound.
type CriticalError = runtime.CriticalError

// Config is the gateway configuration.
type Config = config.Config

// LoadOptions tunes LoadConfig.
type LoadOptions = config.LoadOptions

// Engine applies transformation rules. Implement it to run rules in process.
type Engine = rules.Engine

// EngineFunc adapts a function to Engine.
type EngineFunc = rules.EngineFunc

// RuleError carries the status and message an Engine wants relayed.
type RuleError = rules.Error

// Pipeline is the request handler, usable without a Gateway.
type Pipeline = server.Pipeline

// WebhookConfig configures the HTTP rules engine client.
type WebhookConfig = webhook.Config

// New creates a new Gateway.
// Example:
//
//	cfg, _ := gateway.LoadConfig(gateway.LoadOptions{})
//	gw, err := gateway.New(cfg, gateway.EngineFunc(apply))
//	srv, err := gw.Start(ctx)
var New = runtime.New

var (
	// LoadConfig reads optimus.yaml and OPTIMUS_* variables.
	LoadConfig = config.Load

	// NewPipeline builds a standalone request handler.
	NewPipeline = server.NewPipeline

	// NewWebhookEngine returns an Engine backed by a remote rules service.
	NewWebhookEngine = webhook.New
)

// Configuration options
var (
	WithLogger      = runtime.WithLogger
	WithTraceWriter = runtime.WithTraceWriter
)
