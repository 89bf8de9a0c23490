package guards

import (
	"context"
	"fmt"
	"testing"

	"github.com/unitone-ai/rampart/internal/engine"
	"github.com/unitone-ai/rampart/internal/fingerprint"
	"github.com/unitone-ai/rampart/internal/mcp"
)

func rugPullInput(scopeKey string, tools ...mcp.Tool) *engine.Input {
	return &engine.Input{
		Phase:    engine.PhaseToolsList,
		ScopeKey: scopeKey,
		Payload:  &mcp.Payload{ToolList: &mcp.ToolList{Tools: tools}},
	}
}

func baselineTools(n int) []mcp.Tool {
	tools := make([]mcp.Tool, n)
	for i := range tools {
		tools[i] = mcp.Tool{
			Name:        fmt.Sprintf("tool_%d", i),
			Description: fmt.Sprintf("original description %d", i),
			InputSchema: map[string]any{"type": "object"},
		}
	}
	return tools
}

func mustAllow(t *testing.T, g *RugPullGuard, in *engine.Input) {
	t.Helper()
	verdict, err := g.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Decision != engine.DecisionAllow {
		t.Fatalf("expected allow, got %s (%+v)", verdict.Decision, verdict.Reason)
	}
}

func TestRugPull_DescriptionMutationsBlock(t *testing.T) {
	// Three mutated descriptions at weight 2 each score 6, over threshold 5.
	g := NewRugPullGuard("rp", "default", &engine.RugPullConfig{RiskThreshold: 5}, fingerprint.NewStore())

	tools := baselineTools(3)
	mustAllow(t, g, rugPullInput("sess-1", tools...))

	mutated := baselineTools(3)
	for i := range mutated {
		mutated[i].Description = fmt.Sprintf("changed description %d", i)
	}
	verdict, err := g.Evaluate(context.Background(), rugPullInput("sess-1", mutated...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Decision != engine.DecisionBlock {
		t.Fatalf("expected block, got %s", verdict.Decision)
	}
	if got := verdict.Reason.Detail["risk_score"]; got != 6 {
		t.Errorf("expected risk_score 6, got %v", got)
	}
	changed, _ := verdict.Reason.Detail["description_changed"].([]string)
	if len(changed) != 3 {
		t.Errorf("expected 3 description changes, got %v", changed)
	}
}

func TestRugPull_RemovalUnderThresholdAllowsAndRatchets(t *testing.T) {
	// A single removal scores 3, under threshold 5, so the list passes and
	// the shrunken set becomes the new baseline.
	g := NewRugPullGuard("rp", "default", &engine.RugPullConfig{RiskThreshold: 5}, fingerprint.NewStore())

	tools := baselineTools(3)
	mustAllow(t, g, rugPullInput("sess-1", tools...))
	mustAllow(t, g, rugPullInput("sess-1", tools[:2]...))

	// Re-adding the removed tool now scores as an addition (1), not as a
	// match against the pre-removal baseline.
	verdict, err := g.Evaluate(context.Background(), rugPullInput("sess-1", tools...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Decision != engine.DecisionAllow {
		t.Fatalf("expected allow, got %s", verdict.Decision)
	}
}

func TestRugPull_FirstObservationTrusted(t *testing.T) {
	g := NewRugPullGuard("rp", "default", &engine.RugPullConfig{RiskThreshold: 1}, fingerprint.NewStore())

	// Even at threshold 1 the first list is never scored.
	mustAllow(t, g, rugPullInput("sess-1", baselineTools(5)...))
}

func TestRugPull_ThresholdInclusive(t *testing.T) {
	// Score equal to the threshold blocks.
	g := NewRugPullGuard("rp", "default", &engine.RugPullConfig{RiskThreshold: 2}, fingerprint.NewStore())

	tools := baselineTools(2)
	mustAllow(t, g, rugPullInput("sess-1", tools...))

	mutated := baselineTools(2)
	mutated[0].Description = "changed"
	verdict, _ := g.Evaluate(context.Background(), rugPullInput("sess-1", mutated...))
	if verdict.Decision != engine.DecisionBlock {
		t.Errorf("score 2 at threshold 2 should block, got %s", verdict.Decision)
	}
}

func TestRugPull_NoRatchetOnBlock(t *testing.T) {
	g := NewRugPullGuard("rp", "default", &engine.RugPullConfig{RiskThreshold: 2}, fingerprint.NewStore())

	tools := baselineTools(2)
	mustAllow(t, g, rugPullInput("sess-1", tools...))

	mutated := baselineTools(2)
	mutated[0].Description = "changed"
	verdict, _ := g.Evaluate(context.Background(), rugPullInput("sess-1", mutated...))
	if verdict.Decision != engine.DecisionBlock {
		t.Fatalf("expected block, got %s", verdict.Decision)
	}

	// The original list still matches the baseline, so the blocked list
	// did not become the new reference.
	mustAllow(t, g, rugPullInput("sess-1", tools...))
}

func TestRugPull_SessionScopeIsolation(t *testing.T) {
	g := NewRugPullGuard("rp", "default", &engine.RugPullConfig{RiskThreshold: 2}, fingerprint.NewStore())

	tools := baselineTools(2)
	mutated := baselineTools(2)
	mutated[0].Description = "changed"

	mustAllow(t, g, rugPullInput("sess-1", tools...))

	// A different session has no baseline yet; the mutated list is its
	// trusted first observation.
	mustAllow(t, g, rugPullInput("sess-2", mutated...))

	// The original session still blocks against its own baseline.
	verdict, _ := g.Evaluate(context.Background(), rugPullInput("sess-1", mutated...))
	if verdict.Decision != engine.DecisionBlock {
		t.Errorf("expected block in sess-1, got %s", verdict.Decision)
	}
}

func TestRugPull_GlobalScopeShared(t *testing.T) {
	g := NewRugPullGuard("rp", "default", &engine.RugPullConfig{RiskThreshold: 2, Scope: "global"}, fingerprint.NewStore())

	tools := baselineTools(2)
	mustAllow(t, g, rugPullInput("sess-1", tools...))

	mutated := baselineTools(2)
	mutated[0].Description = "changed"
	verdict, _ := g.Evaluate(context.Background(), rugPullInput("sess-2", mutated...))
	if verdict.Decision != engine.DecisionBlock {
		t.Errorf("global scope should share the baseline across sessions, got %s", verdict.Decision)
	}
}

func TestRugPull_ReleaseScopeResetsBaseline(t *testing.T) {
	g := NewRugPullGuard("rp", "default", &engine.RugPullConfig{RiskThreshold: 2}, fingerprint.NewStore())

	tools := baselineTools(2)
	mutated := baselineTools(2)
	mutated[0].Description = "changed"

	mustAllow(t, g, rugPullInput("sess-1", tools...))
	g.ReleaseScope("sess-1")

	// After release the session starts over: the mutated list is trusted.
	mustAllow(t, g, rugPullInput("sess-1", mutated...))
}

func TestRugPull_ReleaseScopeKeepsGlobalBaseline(t *testing.T) {
	g := NewRugPullGuard("rp", "default", &engine.RugPullConfig{RiskThreshold: 2, Scope: "global"}, fingerprint.NewStore())

	tools := baselineTools(2)
	mutated := baselineTools(2)
	mutated[0].Description = "changed"

	mustAllow(t, g, rugPullInput("sess-1", tools...))
	g.ReleaseScope("sess-1")

	verdict, _ := g.Evaluate(context.Background(), rugPullInput("sess-1", mutated...))
	if verdict.Decision != engine.DecisionBlock {
		t.Errorf("global baseline should survive session release, got %s", verdict.Decision)
	}
}

func TestRugPull_NonToolListPayloadAllowed(t *testing.T) {
	g := NewRugPullGuard("rp", "default", &engine.RugPullConfig{RiskThreshold: 1}, fingerprint.NewStore())

	in := &engine.Input{
		Phase:    engine.PhaseRequest,
		ScopeKey: "sess-1",
		Payload:  &mcp.Payload{Request: &mcp.ToolCallRequest{ToolName: "x"}},
	}
	mustAllow(t, g, in)
}
