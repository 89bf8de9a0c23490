package guards

import (
	"context"
	"fmt"

	"github.com/unitone-ai/rampart/internal/engine"
	"github.com/unitone-ai/rampart/internal/fingerprint"
)

// Mutation-mode weights. A changed description weighs 2 per tool, a changed
// schema or a removed tool 3, a tool added after the baseline existed 1.
const (
	weightDescription = 2
	weightSchema      = 3
	weightRemoval     = 3
	weightAddition    = 1
)

// globalScopeSentinel keys the shared baseline when scope is "global".
const globalScopeSentinel = "__global__"

// RugPullGuard detects tool definitions changing after a client has already
// trusted an initial tools/list. Baselines live in the injected fingerprint
// store; on an allow the baseline ratchets forward to the accepted state.
type RugPullGuard struct {
	id            string
	route         string
	riskThreshold int
	sessionScoped bool
	store         *fingerprint.Store
}

// NewRugPullGuard builds a guard over the shared fingerprint store.
func NewRugPullGuard(id, route string, cfg *engine.RugPullConfig, store *fingerprint.Store) *RugPullGuard {
	return &RugPullGuard{
		id:            id,
		route:         route,
		riskThreshold: cfg.RiskThreshold,
		sessionScoped: cfg.Scope != "global",
		store:         store,
	}
}

func (g *RugPullGuard) ID() string { return g.id }

func (g *RugPullGuard) Type() engine.GuardType { return engine.TypeRugPull }

// scopeKey builds the baseline key. Session scope keys on the calling
// session; global scope shares one sentinel across all sessions of the
// route. Both include the route so routes never share baselines.
func (g *RugPullGuard) scopeKey(in *engine.Input) string {
	if g.sessionScoped {
		return g.route + "/" + in.ScopeKey
	}
	return g.route + "/" + globalScopeSentinel
}

// ReleaseScope drops the baseline for an ended session. Global baselines
// persist for the process lifetime and are unaffected.
func (g *RugPullGuard) ReleaseScope(scopeKey string) {
	if g.sessionScoped {
		g.store.Drop(g.route + "/" + scopeKey)
	}
}

func (g *RugPullGuard) Evaluate(ctx context.Context, in *engine.Input) (*engine.Verdict, error) {
	if in.Payload == nil || in.Payload.ToolList == nil {
		return engine.Allow(), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := fingerprint.TakeSnapshot(in.Payload.ToolList.Tools)

	// The scope stays locked across compare and commit so a concurrent
	// evaluation for the same scope cannot interleave between them.
	scope := g.store.Acquire(g.scopeKey(in))
	defer scope.Release()

	diff := scope.Compare(snap)
	if diff.First {
		// First observation is trusted: establish the baseline, zero risk.
		scope.Commit(snap)
		return engine.Allow(), nil
	}

	score := weightDescription*len(diff.DescriptionChanged) +
		weightSchema*len(diff.SchemaChanged) +
		weightRemoval*len(diff.Removed) +
		weightAddition*len(diff.Added)

	if score >= g.riskThreshold {
		// The whole tools/list response is withheld, not filtered down to
		// the unchanged tools. The baseline does not ratchet on a block.
		msg := fmt.Sprintf("tool definitions changed after baseline (risk %d >= threshold %d)", score, g.riskThreshold)
		return engine.Block(g.id, engine.TypeRugPull, msg, map[string]any{
			"risk_score":          score,
			"risk_threshold":      g.riskThreshold,
			"description_changed": diff.DescriptionChanged,
			"schema_changed":      diff.SchemaChanged,
			"removed":             diff.Removed,
			"added":               diff.Added,
		}), nil
	}

	scope.Commit(snap)
	return engine.Allow(), nil
}

var _ engine.Guard = (*RugPullGuard)(nil)
