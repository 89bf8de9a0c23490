package guards

import (
	"fmt"

	"github.com/unitone-ai/rampart/internal/engine"
	"github.com/unitone-ai/rampart/internal/fingerprint"
	"github.com/unitone-ai/rampart/internal/sandbox"
	"go.uber.org/zap"
)

// Deps carries the shared collaborators guard constructors need. The
// fingerprint store is process-wide so baselines survive config reloads;
// the sandbox is optional and defaults to sandbox.Unavailable.
type Deps struct {
	Fingerprints *fingerprint.Store
	Sandbox      sandbox.Sandbox
	Logger       *zap.Logger
}

// Build constructs guards for one route from its validated configuration.
// A guard whose config fails validation (or whose custom patterns do not
// compile) is skipped with a logged ConfigError; the rest of the route
// stays active. Disabled guards are dropped here so the pipeline only ever
// sees runnable guards.
func Build(route engine.RouteConfig, deps Deps) []engine.BuiltGuard {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	seen := make(map[string]bool, len(route.Guards))
	built := make([]engine.BuiltGuard, 0, len(route.Guards))

	for _, cfg := range route.Guards {
		if !cfg.Enabled {
			continue
		}
		if err := cfg.Validate(); err != nil {
			logger.Warn("skipping invalid guard config",
				zap.String("route", route.Name),
				zap.String("guard_id", cfg.ID),
				zap.Error(err),
			)
			continue
		}
		if seen[cfg.ID] {
			logger.Warn("skipping guard with duplicate id",
				zap.String("route", route.Name),
				zap.String("guard_id", cfg.ID),
			)
			continue
		}

		guard, err := construct(route.Name, cfg, deps)
		if err != nil {
			logger.Warn("skipping guard that failed to build",
				zap.String("route", route.Name),
				zap.String("guard_id", cfg.ID),
				zap.Error(err),
			)
			continue
		}

		seen[cfg.ID] = true
		built = append(built, engine.BuiltGuard{Config: cfg, Guard: guard})
	}
	return built
}

func construct(route string, cfg engine.GuardConfig, deps Deps) (engine.Guard, error) {
	switch cfg.Type {
	case engine.TypeToolPoisoning:
		return NewToolPoisoningGuard(cfg.ID, cfg.ToolPoisoning)
	case engine.TypeRugPull:
		return NewRugPullGuard(cfg.ID, route, cfg.RugPull, deps.Fingerprints), nil
	case engine.TypeToolShadowing:
		return NewToolShadowingGuard(cfg.ID, cfg.ToolShadowing), nil
	case engine.TypeServerWhitelist:
		return NewServerWhitelistGuard(cfg.ID, cfg.ServerWhitelist), nil
	case engine.TypePII:
		return NewPIIGuard(cfg.ID, cfg.PII), nil
	case engine.TypeWASM:
		return NewWASMGuard(cfg.ID, cfg.WASM, deps.Sandbox), nil
	default:
		return nil, fmt.Errorf("unknown guard type %q", cfg.Type)
	}
}
