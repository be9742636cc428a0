package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/rag-gateway/config"
	"github.com/upb/rag-gateway/internal/gateway"
	"github.com/upb/rag-gateway/services/rag"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Gateway *gateway.Client

	// Domain
	Registry *rag.Registry
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Gateway: gateway.NewClient(gateway.WithUserAgent("rag-gateway")),
	}

	if err := deps.initRegistry(); err != nil {
		deps.Gateway.Close()
		return nil, fmt.Errorf("failed to initialize client registry: %w", err)
	}

	if cfg.Clients.ValidateOnStartup {
		if err := deps.validateConnectivity(ctx); err != nil {
			deps.Gateway.Close()
			return nil, err
		}
	}

	logger.Info("all dependencies initialized successfully",
		zap.Int("clients", deps.Registry.Len()))
	return deps, nil
}

// initRegistry loads the client catalog and builds one pipeline per client
func (d *Dependencies) initRegistry() error {
	profiles, err := d.Config.LoadClientProfiles(nil)
	if err != nil {
		return fmt.Errorf("load client profiles: %w", err)
	}

	registry, err := rag.NewRegistry(profiles, d.Gateway, d.Logger)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}

	d.Registry = registry
	d.Logger.Info("client registry initialized",
		zap.Strings("clients", registry.Clients()))
	return nil
}

// validateConnectivity probes every configured endpoint. Outside
// production unreachable endpoints are only logged; the upstream may
// simply not be up yet. In production they fail startup.
func (d *Dependencies) validateConnectivity(ctx context.Context) error {
	results := rag.CheckConnectivity(ctx, d.Registry, d.Gateway, d.Logger)

	reachable := 0
	for _, r := range results {
		if r.Reachable {
			reachable++
		}
	}
	d.Logger.Info("startup connectivity check finished",
		zap.Int("reachable", reachable),
		zap.Int("probed", len(results)))

	if d.Config.IsProduction() && reachable < len(results) {
		return fmt.Errorf("connectivity check failed: %d of %d endpoints unreachable",
			len(results)-reachable, len(results))
	}
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	if d.Gateway != nil {
		d.Gateway.Close()
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return nil
}
