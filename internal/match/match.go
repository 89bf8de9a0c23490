// Package match provides the pattern scanning primitive used by the tool
// poisoning guard. Built-in patterns cover the known tool-metadata attack
// categories; route configuration can append custom patterns.
package match

import (
	"fmt"
	"regexp"
)

// Category labels the attack class a pattern detects.
type Category string

const (
	CategoryHiddenInstructions Category = "hidden_instructions"
	CategoryPromptInjection    Category = "prompt_injection"
	CategorySystemOverride     Category = "system_override"
	CategorySafetyBypass       Category = "safety_bypass"
	CategoryRoleManipulation   Category = "role_manipulation"
	CategoryPromptLeak         Category = "prompt_leak"
	CategoryCustom             Category = "custom"
)

// Pattern is a compiled scanning rule.
type Pattern struct {
	Category Category
	Detail   string
	re       *regexp.Regexp
}

// Match records one pattern hit inside a scanned string.
type Match struct {
	Category Category
	Detail   string
	Start    int
	End      int
}

// Pre-compiled built-in patterns — compiled once at startup, never during a
// request. All use (?i) so payloads are never lowercased per scan.
var builtinPatterns = []Pattern{
	// Hidden instruction tags embedded in tool metadata.
	{CategoryHiddenInstructions, "hidden instruction tag: [HIDDEN]", regexp.MustCompile(`(?i)\[HIDDEN\]`)},
	{CategoryHiddenInstructions, "hidden instruction tag: [SECRET]", regexp.MustCompile(`(?i)\[SECRET\]`)},
	{CategoryHiddenInstructions, "hidden instruction tag: <IMPORTANT>", regexp.MustCompile(`(?i)<important>`)},
	{CategoryHiddenInstructions, "hidden instruction tag: <SYSTEM>", regexp.MustCompile(`(?i)<system>`)},
	{CategoryHiddenInstructions, "hidden instruction tag: <INSTRUCTION>", regexp.MustCompile(`(?i)<instruction>`)},

	// Prompt injection phrases.
	{CategoryPromptInjection, "override: ignore previous instructions", regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`)},
	{CategoryPromptInjection, "override: disregard instructions", regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions|rules|guidelines)`)},
	{CategoryPromptInjection, "override: forget instructions", regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above)\s+(instructions|context)`)},

	// System override commands.
	{CategorySystemOverride, "system override command", regexp.MustCompile(`(?i)SYSTEM\s*:\s*override`)},
	{CategorySystemOverride, "explicit override attempt", regexp.MustCompile(`(?i)override\s+(system|safety|security)\s+(prompt|instructions|rules|policy)`)},

	// Safety bypass phrases.
	{CategorySafetyBypass, "explicit bypass attempt", regexp.MustCompile(`(?i)bypass\s+(all\s+)?(the\s+)?(safety|security|content)\s*(restrictions|filter|check|policy|rules)?`)},

	// Role manipulation.
	{CategoryRoleManipulation, "role manipulation: jailbroken", regexp.MustCompile(`(?i)jailbroken`)},
	{CategoryRoleManipulation, "role manipulation: you are now", regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an)\s+`)},
	{CategoryRoleManipulation, "role manipulation: no restrictions claim", regexp.MustCompile(`(?i)you\s+have\s+no\s+(restrictions|rules|limitations|guidelines|filters)`)},

	// System prompt leaking.
	{CategoryPromptLeak, "system prompt extraction", regexp.MustCompile(`(?i)reveal\s+(your|the)\s+(system|initial|original|hidden)\s+prompt`)},
	{CategoryPromptLeak, "system prompt extraction", regexp.MustCompile(`(?i)output\s+(your|the)\s+(system|initial|original)\s+(prompt|instructions|message)`)},
}

// reducedCategories is the default set scanned when strict mode is off.
// The widened set additionally covers role manipulation and prompt leaking,
// which carry more false-positive risk in benign tool descriptions.
var reducedCategories = map[Category]bool{
	CategoryHiddenInstructions: true,
	CategoryPromptInjection:    true,
	CategorySystemOverride:     true,
	CategorySafetyBypass:       true,
}

// Builtin returns the built-in pattern set. strict selects the full set;
// otherwise only the reduced default categories are scanned.
func Builtin(strict bool) []Pattern {
	if strict {
		return builtinPatterns
	}
	out := make([]Pattern, 0, len(builtinPatterns))
	for _, p := range builtinPatterns {
		if reducedCategories[p.Category] {
			out = append(out, p)
		}
	}
	return out
}

// Compile builds case-insensitive patterns from user-supplied expressions.
// Custom patterns are appended to the built-ins, never replacing them.
func Compile(exprs []string) ([]Pattern, error) {
	out := make([]Pattern, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, fmt.Errorf("compile custom pattern %q: %w", expr, err)
		}
		out = append(out, Pattern{
			Category: CategoryCustom,
			Detail:   "custom pattern: " + expr,
			re:       re,
		})
	}
	return out, nil
}

// Scan returns all pattern hits in text. One match is reported per pattern
// (first occurrence) to keep reason payloads bounded.
func Scan(text string, patterns []Pattern) []Match {
	var matches []Match
	for _, p := range patterns {
		loc := p.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		matches = append(matches, Match{
			Category: p.Category,
			Detail:   p.Detail,
			Start:    loc[0],
			End:      loc[1],
		})
	}
	return matches
}

// FlattenSchema walks a JSON Schema document and collects every scannable
// string value: parameter names, descriptions, titles, and enum values.
// Poisoned instructions hide in schema fields as readily as in tool
// descriptions.
func FlattenSchema(schema map[string]any) []string {
	var out []string
	flattenValue(schema, &out)
	return out
}

func flattenValue(v any, out *[]string) {
	switch val := v.(type) {
	case map[string]any:
		for key, child := range val {
			switch key {
			case "description", "title":
				if s, ok := child.(string); ok && s != "" {
					*out = append(*out, s)
				}
			case "properties":
				if props, ok := child.(map[string]any); ok {
					for name, prop := range props {
						*out = append(*out, name)
						flattenValue(prop, out)
					}
					continue
				}
			case "enum":
				if items, ok := child.([]any); ok {
					for _, item := range items {
						if s, ok := item.(string); ok {
							*out = append(*out, s)
						}
					}
					continue
				}
			}
			flattenValue(child, out)
		}
	case []any:
		for _, item := range val {
			flattenValue(item, out)
		}
	}
}
