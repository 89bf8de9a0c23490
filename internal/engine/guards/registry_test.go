package guards

import (
	"testing"

	"github.com/unitone-ai/rampart/internal/engine"
	"github.com/unitone-ai/rampart/internal/fingerprint"
)

func TestBuild_AllGuardTypes(t *testing.T) {
	route := engine.RouteConfig{
		Name: "default",
		Guards: []engine.GuardConfig{
			{ID: "tp", Type: engine.TypeToolPoisoning, Enabled: true, RunsOn: []string{"tools_list"}},
			{ID: "rp", Type: engine.TypeRugPull, Enabled: true, RunsOn: []string{"tools_list"},
				RugPull: &engine.RugPullConfig{RiskThreshold: 5}},
			{ID: "ts", Type: engine.TypeToolShadowing, Enabled: true, RunsOn: []string{"tools_list"}},
			{ID: "wl", Type: engine.TypeServerWhitelist, Enabled: true, RunsOn: []string{"request"},
				ServerWhitelist: &engine.ServerWhitelistConfig{AllowedServers: []string{"github"}}},
			{ID: "pg", Type: engine.TypePII, Enabled: true, RunsOn: []string{"request", "response"},
				PII: &engine.PIIConfig{Detect: []string{"email"}, Action: "mask"}},
			{ID: "wg", Type: engine.TypeWASM, Enabled: true, RunsOn: []string{"request"},
				WASM: &engine.WASMConfig{ModulePath: "m.wasm"}},
		},
	}

	built := Build(route, Deps{Fingerprints: fingerprint.NewStore()})
	if len(built) != 6 {
		t.Fatalf("expected 6 guards, got %d", len(built))
	}
	for i, bg := range built {
		if bg.Guard.Type() != route.Guards[i].Type {
			t.Errorf("guard %d type = %s, want %s", i, bg.Guard.Type(), route.Guards[i].Type)
		}
	}
}

func TestBuild_SkipsDisabledInvalidAndDuplicates(t *testing.T) {
	route := engine.RouteConfig{
		Name: "default",
		Guards: []engine.GuardConfig{
			{ID: "off", Type: engine.TypeToolPoisoning, Enabled: false, RunsOn: []string{"tools_list"}},
			{ID: "bad", Type: engine.TypeRugPull, Enabled: true, RunsOn: []string{"tools_list"}},
			{ID: "keep", Type: engine.TypeToolPoisoning, Enabled: true, RunsOn: []string{"tools_list"}},
			{ID: "keep", Type: engine.TypeToolShadowing, Enabled: true, RunsOn: []string{"tools_list"}},
		},
	}

	built := Build(route, Deps{Fingerprints: fingerprint.NewStore()})
	if len(built) != 1 {
		t.Fatalf("expected 1 guard, got %d", len(built))
	}
	if built[0].Config.ID != "keep" || built[0].Guard.Type() != engine.TypeToolPoisoning {
		t.Errorf("kept guard = %s/%s", built[0].Config.ID, built[0].Guard.Type())
	}
}

func TestBuild_SkipsUncompilablePatterns(t *testing.T) {
	route := engine.RouteConfig{
		Name: "default",
		Guards: []engine.GuardConfig{
			{ID: "tp", Type: engine.TypeToolPoisoning, Enabled: true, RunsOn: []string{"tools_list"},
				ToolPoisoning: &engine.ToolPoisoningConfig{CustomPatterns: []string{`[bad`}}},
		},
	}

	built := Build(route, Deps{})
	if len(built) != 0 {
		t.Fatalf("expected guard with bad pattern to be skipped, got %d", len(built))
	}
}
