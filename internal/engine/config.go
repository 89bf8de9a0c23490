package engine

import (
	"fmt"

	"github.com/unitone-ai/rampart/internal/pii"
)

// GuardType identifies a guard implementation.
type GuardType string

const (
	TypeToolPoisoning   GuardType = "tool_poisoning"
	TypeRugPull         GuardType = "rug_pull"
	TypeToolShadowing   GuardType = "tool_shadowing"
	TypeServerWhitelist GuardType = "server_whitelist"
	TypePII             GuardType = "pii"
	TypeWASM            GuardType = "wasm"
)

// DefaultTimeoutMs bounds a guard invocation when the config omits one.
const DefaultTimeoutMs = 100

// GuardConfig is one configured guard instance on a route. Exactly one of
// the type-specific sections matching Type should be set; a nil section
// uses that guard type's defaults.
type GuardConfig struct {
	ID          string    `json:"id" yaml:"id"`
	Type        GuardType `json:"type" yaml:"type"`
	Enabled     bool      `json:"enabled" yaml:"enabled"`
	Priority    int       `json:"priority" yaml:"priority"`
	TimeoutMs   int       `json:"timeout_ms" yaml:"timeout_ms"`
	FailureMode string    `json:"failure_mode,omitempty" yaml:"failure_mode,omitempty"`
	RunsOn      []string  `json:"runs_on" yaml:"runs_on"`

	ToolPoisoning   *ToolPoisoningConfig   `json:"tool_poisoning,omitempty" yaml:"tool_poisoning,omitempty"`
	RugPull         *RugPullConfig         `json:"rug_pull,omitempty" yaml:"rug_pull,omitempty"`
	ToolShadowing   *ToolShadowingConfig   `json:"tool_shadowing,omitempty" yaml:"tool_shadowing,omitempty"`
	ServerWhitelist *ServerWhitelistConfig `json:"server_whitelist,omitempty" yaml:"server_whitelist,omitempty"`
	PII             *PIIConfig             `json:"pii,omitempty" yaml:"pii,omitempty"`
	WASM            *WASMConfig            `json:"wasm,omitempty" yaml:"wasm,omitempty"`
}

// ToolPoisoningConfig controls the metadata poisoning guard.
type ToolPoisoningConfig struct {
	StrictMode     bool     `json:"strict_mode" yaml:"strict_mode"`
	CustomPatterns []string `json:"custom_patterns,omitempty" yaml:"custom_patterns,omitempty"`
	ScanFields     []string `json:"scan_fields,omitempty" yaml:"scan_fields,omitempty"`
	AlertThreshold int      `json:"alert_threshold,omitempty" yaml:"alert_threshold,omitempty"`
}

// RugPullConfig controls baseline diff tracking.
type RugPullConfig struct {
	RiskThreshold int    `json:"risk_threshold" yaml:"risk_threshold"`
	Scope         string `json:"scope,omitempty" yaml:"scope,omitempty"` // "session" or "global"
}

// ToolShadowingConfig controls duplicate tool name detection.
type ToolShadowingConfig struct {
	BlockDuplicates bool     `json:"block_duplicates" yaml:"block_duplicates"`
	ProtectedNames  []string `json:"protected_names,omitempty" yaml:"protected_names,omitempty"`
}

// ServerWhitelistConfig controls backend identity enforcement.
type ServerWhitelistConfig struct {
	AllowedServers      []string `json:"allowed_servers" yaml:"allowed_servers"`
	DetectTyposquats    bool     `json:"detect_typosquats" yaml:"detect_typosquats"`
	SimilarityThreshold float64  `json:"similarity_threshold,omitempty" yaml:"similarity_threshold,omitempty"`
}

// PIIConfig controls PII detection and the mask/reject action.
type PIIConfig struct {
	Detect           []string `json:"detect" yaml:"detect"`
	Action           string   `json:"action" yaml:"action"` // "mask" or "reject"
	MinScore         float32  `json:"min_score,omitempty" yaml:"min_score,omitempty"`
	RejectionMessage string   `json:"rejection_message,omitempty" yaml:"rejection_message,omitempty"`
}

// WASMConfig points the pluggable guard at a module and bounds its run.
type WASMConfig struct {
	ModulePath     string            `json:"module_path" yaml:"module_path"`
	MaxMemoryBytes uint64            `json:"max_memory_bytes,omitempty" yaml:"max_memory_bytes,omitempty"`
	MaxFuel        uint64            `json:"max_fuel,omitempty" yaml:"max_fuel,omitempty"`
	Config         map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}

// RouteConfig is the guard configuration for one gateway route.
type RouteConfig struct {
	Name   string        `json:"name" yaml:"name"`
	Shadow bool          `json:"shadow,omitempty" yaml:"shadow,omitempty"`
	Guards []GuardConfig `json:"guards" yaml:"guards"`
}

// ConfigError reports a malformed guard configuration. Surfaced at route
// load time; the registry skips the invalid guard and keeps the rest of
// the route active.
type ConfigError struct {
	GuardID string
	Field   string
	Msg     string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("guard %q: invalid %s: %s", e.GuardID, e.Field, e.Msg)
}

// knownScanFields for tool_poisoning.scan_fields.
var knownScanFields = map[string]bool{
	"name":         true,
	"description":  true,
	"input_schema": true,
}

// Validate checks the structural invariants of one guard config. Regex
// compilation of custom patterns happens in the registry, where the
// compiled set is also needed.
func (c *GuardConfig) Validate() error {
	if c.ID == "" {
		return &ConfigError{GuardID: c.ID, Field: "id", Msg: "must not be empty"}
	}
	switch c.Type {
	case TypeToolPoisoning, TypeRugPull, TypeToolShadowing, TypeServerWhitelist, TypePII, TypeWASM:
	default:
		return &ConfigError{GuardID: c.ID, Field: "type", Msg: fmt.Sprintf("unknown guard type %q", c.Type)}
	}
	if len(c.RunsOn) == 0 {
		return &ConfigError{GuardID: c.ID, Field: "runs_on", Msg: "must not be empty"}
	}
	for _, p := range c.RunsOn {
		if _, ok := ParsePhase(p); !ok {
			return &ConfigError{GuardID: c.ID, Field: "runs_on", Msg: fmt.Sprintf("unknown phase %q", p)}
		}
	}
	if c.TimeoutMs < 0 {
		return &ConfigError{GuardID: c.ID, Field: "timeout_ms", Msg: "must not be negative"}
	}
	switch c.FailureMode {
	case "", "fail_closed", "fail_open":
	default:
		return &ConfigError{GuardID: c.ID, Field: "failure_mode", Msg: fmt.Sprintf("unknown mode %q", c.FailureMode)}
	}

	switch c.Type {
	case TypeToolPoisoning:
		if c.ToolPoisoning != nil {
			for _, f := range c.ToolPoisoning.ScanFields {
				if !knownScanFields[f] {
					return &ConfigError{GuardID: c.ID, Field: "scan_fields", Msg: fmt.Sprintf("unknown field %q", f)}
				}
			}
			if c.ToolPoisoning.AlertThreshold < 0 {
				return &ConfigError{GuardID: c.ID, Field: "alert_threshold", Msg: "must not be negative"}
			}
		}
	case TypeRugPull:
		if c.RugPull != nil {
			switch c.RugPull.Scope {
			case "", "session", "global":
			default:
				return &ConfigError{GuardID: c.ID, Field: "scope", Msg: fmt.Sprintf("unknown scope %q", c.RugPull.Scope)}
			}
			if c.RugPull.RiskThreshold < 1 {
				return &ConfigError{GuardID: c.ID, Field: "risk_threshold", Msg: "must be at least 1"}
			}
		} else {
			return &ConfigError{GuardID: c.ID, Field: "rug_pull", Msg: "risk_threshold is required"}
		}
	case TypeServerWhitelist:
		if c.ServerWhitelist == nil || len(c.ServerWhitelist.AllowedServers) == 0 {
			return &ConfigError{GuardID: c.ID, Field: "allowed_servers", Msg: "must not be empty"}
		}
		if st := c.ServerWhitelist.SimilarityThreshold; st < 0 || st > 1 {
			return &ConfigError{GuardID: c.ID, Field: "similarity_threshold", Msg: "must be between 0 and 1"}
		}
	case TypePII:
		if c.PII == nil {
			return &ConfigError{GuardID: c.ID, Field: "pii", Msg: "detect and action are required"}
		}
		if len(c.PII.Detect) == 0 {
			return &ConfigError{GuardID: c.ID, Field: "detect", Msg: "must not be empty"}
		}
		for _, t := range c.PII.Detect {
			if _, ok := pii.ParseType(t); !ok {
				return &ConfigError{GuardID: c.ID, Field: "detect", Msg: fmt.Sprintf("unknown PII type %q", t)}
			}
		}
		switch c.PII.Action {
		case "mask", "reject":
		default:
			return &ConfigError{GuardID: c.ID, Field: "action", Msg: fmt.Sprintf("must be mask or reject, got %q", c.PII.Action)}
		}
		if c.PII.MinScore < 0 || c.PII.MinScore > 1 {
			return &ConfigError{GuardID: c.ID, Field: "min_score", Msg: "must be between 0 and 1"}
		}
	case TypeWASM:
		if c.WASM == nil || c.WASM.ModulePath == "" {
			return &ConfigError{GuardID: c.ID, Field: "module_path", Msg: "must not be empty"}
		}
	}
	return nil
}

// Phases returns the parsed runs_on set.
func (c *GuardConfig) Phases() []Phase {
	out := make([]Phase, 0, len(c.RunsOn))
	for _, s := range c.RunsOn {
		if p, ok := ParsePhase(s); ok {
			out = append(out, p)
		}
	}
	return out
}

// RunsOnPhase reports whether the guard is configured for a phase.
func (c *GuardConfig) RunsOnPhase(phase Phase) bool {
	for _, s := range c.RunsOn {
		if p, _ := ParsePhase(s); p == phase {
			return true
		}
	}
	return false
}

// EffectiveFailureMode parses the configured failure mode, defaulting to
// fail_closed.
func (c *GuardConfig) EffectiveFailureMode() FailureMode {
	if c.FailureMode == "fail_open" {
		return FailOpen
	}
	return FailClosed
}
