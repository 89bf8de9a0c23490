// Package guards contains the guard implementations dispatched by the
// pipeline. Each guard owns its configuration and state; there is no
// shared mutable base.
package guards

import (
	"context"
	"fmt"
	"strings"

	"github.com/unitone-ai/rampart/internal/engine"
	"github.com/unitone-ai/rampart/internal/match"
	"github.com/unitone-ai/rampart/internal/mcp"
)

// defaultScanFields when the config does not narrow the scan.
var defaultScanFields = []string{"name", "description", "input_schema"}

// ToolPoisoningGuard scans tool metadata for embedded attack instructions.
// It only ever allows or blocks; tool lists pass through unmodified.
type ToolPoisoningGuard struct {
	id             string
	patterns       []match.Pattern
	scanFields     map[string]bool
	alertThreshold int
}

// NewToolPoisoningGuard compiles the pattern set for one configured
// instance. Custom patterns are appended to the built-ins.
func NewToolPoisoningGuard(id string, cfg *engine.ToolPoisoningConfig) (*ToolPoisoningGuard, error) {
	if cfg == nil {
		cfg = &engine.ToolPoisoningConfig{StrictMode: true}
	}

	patterns := match.Builtin(cfg.StrictMode)
	if len(cfg.CustomPatterns) > 0 {
		custom, err := match.Compile(cfg.CustomPatterns)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, custom...)
	}

	fields := cfg.ScanFields
	if len(fields) == 0 {
		fields = defaultScanFields
	}
	fieldSet := make(map[string]bool, len(fields))
	for _, f := range fields {
		fieldSet[f] = true
	}

	threshold := cfg.AlertThreshold
	if threshold == 0 {
		threshold = 1
	}

	return &ToolPoisoningGuard{
		id:             id,
		patterns:       patterns,
		scanFields:     fieldSet,
		alertThreshold: threshold,
	}, nil
}

func (g *ToolPoisoningGuard) ID() string { return g.id }

func (g *ToolPoisoningGuard) Type() engine.GuardType { return engine.TypeToolPoisoning }

func (g *ToolPoisoningGuard) Evaluate(ctx context.Context, in *engine.Input) (*engine.Verdict, error) {
	switch {
	case in.Payload != nil && in.Payload.ToolList != nil:
		return g.evaluateToolList(ctx, in)
	case in.Payload != nil && in.Payload.Request != nil:
		return g.evaluateRequest(in)
	default:
		return engine.Allow(), nil
	}
}

// toolFinding is one poisoned field on one tool, recorded for the reason
// detail so operators can see the per-tool breakdown.
type toolFinding struct {
	Tool     string `json:"tool"`
	Field    string `json:"field"`
	Category string `json:"category"`
	Detail   string `json:"detail"`
}

func (g *ToolPoisoningGuard) evaluateToolList(ctx context.Context, in *engine.Input) (*engine.Verdict, error) {
	var findings []toolFinding
	for _, tool := range in.Payload.ToolList.Tools {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		findings = append(findings, g.scanTool(tool)...)
	}

	if len(findings) < g.alertThreshold {
		return engine.Allow(), nil
	}

	tools := make(map[string]bool)
	for _, f := range findings {
		tools[f.Tool] = true
	}
	msg := fmt.Sprintf("poisoned tool metadata: %d pattern match(es) across %d tool(s)", len(findings), len(tools))
	return engine.Block(g.id, engine.TypeToolPoisoning, msg, map[string]any{
		"match_count": len(findings),
		"findings":    findings,
	}), nil
}

func (g *ToolPoisoningGuard) scanTool(tool mcp.Tool) []toolFinding {
	var findings []toolFinding

	record := func(field string, matches []match.Match) {
		for _, m := range matches {
			findings = append(findings, toolFinding{
				Tool:     tool.Name,
				Field:    field,
				Category: string(m.Category),
				Detail:   m.Detail,
			})
		}
	}

	if g.scanFields["name"] {
		record("name", match.Scan(tool.Name, g.patterns))
	}
	if g.scanFields["description"] {
		record("description", match.Scan(tool.Description, g.patterns))
	}
	if g.scanFields["input_schema"] && tool.InputSchema != nil {
		// Schema text is flattened to scannable strings: parameter names,
		// descriptions, enum values.
		flat := strings.Join(match.FlattenSchema(tool.InputSchema), "\n")
		record("input_schema", match.Scan(flat, g.patterns))
	}
	return findings
}

// evaluateRequest covers the optional tool_invoke phase: arguments are
// scanned the same way as metadata.
func (g *ToolPoisoningGuard) evaluateRequest(in *engine.Input) (*engine.Verdict, error) {
	req := in.Payload.Request
	matches := match.Scan(req.ArgumentsJSON, g.patterns)
	if len(matches) < g.alertThreshold {
		return engine.Allow(), nil
	}

	details := make([]string, 0, len(matches))
	categories := make([]string, 0, len(matches))
	for _, m := range matches {
		details = append(details, m.Detail)
		categories = append(categories, string(m.Category))
	}
	msg := fmt.Sprintf("poisoned arguments for tool %q", req.ToolName)
	return engine.Block(g.id, engine.TypeToolPoisoning, msg, map[string]any{
		"tool":        req.ToolName,
		"match_count": len(matches),
		"categories":  categories,
		"details":     details,
	}), nil
}

var _ engine.Guard = (*ToolPoisoningGuard)(nil)
