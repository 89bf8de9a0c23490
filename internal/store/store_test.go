package store

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/unitone-ai/rampart/internal/engine"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerateAPIKey(t *testing.T) {
	fullKey, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(fullKey, "rgk_") {
		t.Errorf("key %q missing rgk_ prefix", fullKey)
	}
	if len(fullKey) != 68 {
		t.Errorf("key length = %d, want 68", len(fullKey))
	}
	if prefix != fullKey[:8] {
		t.Errorf("prefix = %q, want %q", prefix, fullKey[:8])
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(fullKey)); err != nil {
		t.Errorf("hash does not verify: %v", err)
	}

	other, _, _, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other == fullKey {
		t.Error("two generated keys are identical")
	}
}

func TestRouteConfig_EnabledDefault(t *testing.T) {
	r := Route{
		Name:   "default",
		Shadow: true,
		Guards: json.RawMessage(`[
			{"id": "a", "type": "tool_poisoning", "runs_on": ["tools_list"]},
			{"id": "b", "type": "tool_shadowing", "runs_on": ["tools_list"], "enabled": false},
			{"id": "c", "type": "rug_pull", "runs_on": ["tools_list"], "enabled": true,
			 "rug_pull": {"risk_threshold": 5}}
		]`),
	}

	cfg, err := r.Config()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != "default" || !cfg.Shadow {
		t.Errorf("route = %+v", cfg)
	}
	if len(cfg.Guards) != 3 {
		t.Fatalf("guards = %d", len(cfg.Guards))
	}
	if !cfg.Guards[0].Enabled {
		t.Error("omitted enabled key should default to true")
	}
	if cfg.Guards[1].Enabled {
		t.Error("explicit enabled: false was overridden")
	}
	if !cfg.Guards[2].Enabled {
		t.Error("explicit enabled: true lost")
	}
	if cfg.Guards[2].Type != engine.TypeRugPull || cfg.Guards[2].RugPull.RiskThreshold != 5 {
		t.Errorf("guard c = %+v", cfg.Guards[2])
	}
}

func TestRouteConfig_EmptyGuards(t *testing.T) {
	r := Route{Name: "open"}
	cfg, err := r.Config()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Guards) != 0 {
		t.Errorf("guards = %+v", cfg.Guards)
	}
}

func TestRouteConfig_MalformedGuards(t *testing.T) {
	r := Route{Name: "bad", Guards: json.RawMessage(`{"not": "an array"}`)}
	if _, err := r.Config(); err == nil {
		t.Error("expected decode error")
	}
}
