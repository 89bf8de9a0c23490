// Package config loads, validates, and hot-reloads route guard
// configuration, and exposes the active pipelines through an atomically
// swappable snapshot.
package config

import (
	"sync/atomic"

	"github.com/unitone-ai/rampart/internal/engine"
	"github.com/unitone-ai/rampart/internal/engine/guards"
	"go.uber.org/zap"
)

// snapshot is one immutable generation of built pipelines.
type snapshot struct {
	pipelines map[string]*engine.Pipeline
}

// Provider holds the active pipelines behind an atomic pointer. A config
// swap replaces the whole snapshot between interactions; in-flight
// evaluations keep the pipeline generation they started with.
type Provider struct {
	deps   guards.Deps
	logger *zap.Logger
	snap   atomic.Pointer[snapshot]
}

// NewProvider builds a provider and installs the initial routes.
func NewProvider(routes []engine.RouteConfig, deps guards.Deps, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provider{deps: deps, logger: logger}
	p.Swap(routes)
	return p
}

// Swap rebuilds all pipelines from the given routes and atomically
// replaces the active snapshot. Invalid guards are skipped per route by
// the registry; the shared fingerprint store is carried across swaps so
// rug pull baselines survive a reload.
func (p *Provider) Swap(routes []engine.RouteConfig) {
	pipelines := make(map[string]*engine.Pipeline, len(routes))
	for _, route := range routes {
		built := guards.Build(route, p.deps)
		pipelines[route.Name] = engine.NewPipeline(route.Name, route.Shadow, built, p.logger)
		p.logger.Info("route configured",
			zap.String("route", route.Name),
			zap.Bool("shadow", route.Shadow),
			zap.Int("guards", len(built)),
		)
	}
	p.snap.Store(&snapshot{pipelines: pipelines})
}

// Route returns the pipeline for a route, or nil if the route is unknown.
func (p *Provider) Route(name string) *engine.Pipeline {
	snap := p.snap.Load()
	if snap == nil {
		return nil
	}
	return snap.pipelines[name]
}

// Routes lists the configured route names.
func (p *Provider) Routes() []string {
	snap := p.snap.Load()
	if snap == nil {
		return nil
	}
	names := make([]string, 0, len(snap.pipelines))
	for name := range snap.pipelines {
		names = append(names, name)
	}
	return names
}

// ReleaseScope tells every route's pipeline that a session ended.
func (p *Provider) ReleaseScope(scopeKey string) {
	snap := p.snap.Load()
	if snap == nil {
		return
	}
	for _, pipe := range snap.pipelines {
		pipe.ReleaseScope(scopeKey)
	}
}
