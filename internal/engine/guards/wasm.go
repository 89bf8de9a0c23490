package guards

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/unitone-ai/rampart/internal/engine"
	"github.com/unitone-ai/rampart/internal/mcp"
	"github.com/unitone-ai/rampart/internal/sandbox"
)

// WASMGuard delegates the verdict to a module executed inside an injected
// sandbox runtime. The guard itself only marshals the payload in, applies
// the configured resource limits, and maps the module's result back into
// a verdict; sandbox faults surface as guard errors and go through the
// failure mode like any other guard failure.
type WASMGuard struct {
	id     string
	cfg    *engine.WASMConfig
	runner sandbox.Sandbox
}

func NewWASMGuard(id string, cfg *engine.WASMConfig, runner sandbox.Sandbox) *WASMGuard {
	if runner == nil {
		runner = sandbox.Unavailable{}
	}
	return &WASMGuard{id: id, cfg: cfg, runner: runner}
}

func (g *WASMGuard) ID() string { return g.id }

func (g *WASMGuard) Type() engine.GuardType { return engine.TypeWASM }

func (g *WASMGuard) Evaluate(ctx context.Context, in *engine.Input) (*engine.Verdict, error) {
	raw, err := json.Marshal(in.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for module: %w", err)
	}

	result, err := g.runner.Execute(ctx, g.cfg.ModulePath, &sandbox.Input{
		Phase:   in.Phase.String(),
		Payload: raw,
		Config:  g.cfg.Config,
	}, sandbox.Limits{
		MaxMemoryBytes: g.cfg.MaxMemoryBytes,
		MaxFuel:        g.cfg.MaxFuel,
	})
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", g.cfg.ModulePath, err)
	}

	switch result.Decision {
	case "allow":
		return engine.Allow(), nil
	case "block":
		return engine.Block(g.id, engine.TypeWASM, result.Message, result.Detail), nil
	case "modify":
		var payload mcp.Payload
		if err := json.Unmarshal(result.ModifiedPayload, &payload); err != nil {
			return nil, fmt.Errorf("module %s returned invalid modified payload: %w", g.cfg.ModulePath, err)
		}
		return engine.Modify(g.id, engine.TypeWASM, result.Message, result.Detail, &payload), nil
	default:
		return nil, fmt.Errorf("module %s returned unknown decision %q", g.cfg.ModulePath, result.Decision)
	}
}

var _ engine.Guard = (*WASMGuard)(nil)
