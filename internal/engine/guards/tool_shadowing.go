package guards

import (
	"context"
	"fmt"

	"github.com/unitone-ai/rampart/internal/engine"
)

// ToolShadowingGuard detects two backends in the same aggregated tool list
// exposing a tool under the same name. Protected names are always enforced
// as block-on-duplicate, even when block_duplicates is off for the route.
type ToolShadowingGuard struct {
	id              string
	blockDuplicates bool
	protected       map[string]bool
}

func NewToolShadowingGuard(id string, cfg *engine.ToolShadowingConfig) *ToolShadowingGuard {
	if cfg == nil {
		cfg = &engine.ToolShadowingConfig{BlockDuplicates: true}
	}
	protected := make(map[string]bool, len(cfg.ProtectedNames))
	for _, name := range cfg.ProtectedNames {
		protected[name] = true
	}
	return &ToolShadowingGuard{
		id:              id,
		blockDuplicates: cfg.BlockDuplicates,
		protected:       protected,
	}
}

func (g *ToolShadowingGuard) ID() string { return g.id }

func (g *ToolShadowingGuard) Type() engine.GuardType { return engine.TypeToolShadowing }

func (g *ToolShadowingGuard) Evaluate(ctx context.Context, in *engine.Input) (*engine.Verdict, error) {
	if in.Payload == nil || in.Payload.ToolList == nil {
		return engine.Allow(), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// First registration of a name wins; later occurrences from a
	// different server are shadowing attempts.
	firstServer := make(map[string]string)
	for _, tool := range in.Payload.ToolList.Tools {
		origin, seen := firstServer[tool.Name]
		if !seen {
			firstServer[tool.Name] = tool.Server
			continue
		}
		if origin == tool.Server {
			continue
		}
		if g.blockDuplicates || g.protected[tool.Name] {
			msg := fmt.Sprintf("tool %q from server %q shadows the same tool from server %q", tool.Name, tool.Server, origin)
			return engine.Block(g.id, engine.TypeToolShadowing, msg, map[string]any{
				"tool":             tool.Name,
				"original_server":  origin,
				"shadowing_server": tool.Server,
				"protected":        g.protected[tool.Name],
			}), nil
		}
	}
	return engine.Allow(), nil
}

var _ engine.Guard = (*ToolShadowingGuard)(nil)
