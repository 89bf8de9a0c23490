package guards

import (
	"context"
	"fmt"

	"github.com/unitone-ai/rampart/internal/engine"
)

// defaultSimilarityThreshold flags an unlisted server as a typosquat when
// its normalized similarity to an allowed name reaches this value.
const defaultSimilarityThreshold = 0.85

// ServerWhitelistGuard blocks interactions targeting backends outside the
// configured allowlist. With typosquat detection on, an unlisted name close
// to an allowed one is called out explicitly: a near-miss name is a
// stronger attack signal than a plainly unknown one.
type ServerWhitelistGuard struct {
	id               string
	allowed          []string
	allowedSet       map[string]bool
	detectTyposquats bool
	threshold        float64
}

func NewServerWhitelistGuard(id string, cfg *engine.ServerWhitelistConfig) *ServerWhitelistGuard {
	set := make(map[string]bool, len(cfg.AllowedServers))
	for _, s := range cfg.AllowedServers {
		set[s] = true
	}
	threshold := cfg.SimilarityThreshold
	if threshold == 0 {
		threshold = defaultSimilarityThreshold
	}
	return &ServerWhitelistGuard{
		id:               id,
		allowed:          cfg.AllowedServers,
		allowedSet:       set,
		detectTyposquats: cfg.DetectTyposquats,
		threshold:        threshold,
	}
}

func (g *ServerWhitelistGuard) ID() string { return g.id }

func (g *ServerWhitelistGuard) Type() engine.GuardType { return engine.TypeServerWhitelist }

func (g *ServerWhitelistGuard) Evaluate(ctx context.Context, in *engine.Input) (*engine.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := in.TargetServer()
	if target == "" {
		// No server identity on this phase; nothing to enforce.
		return engine.Allow(), nil
	}
	if g.allowedSet[target] {
		return engine.Allow(), nil
	}

	if g.detectTyposquats {
		if similar, ratio, ok := g.typosquatOf(target); ok {
			msg := fmt.Sprintf("server %q appears to be typosquatting approved server %q", target, similar)
			return engine.Block(g.id, engine.TypeServerWhitelist, msg, map[string]any{
				"server":      target,
				"similar_to":  similar,
				"similarity":  ratio,
				"attack_type": "typosquatting",
			}), nil
		}
	}

	msg := fmt.Sprintf("server %q is not in the approved server whitelist", target)
	return engine.Block(g.id, engine.TypeServerWhitelist, msg, map[string]any{
		"server": target,
	}), nil
}

// typosquatOf returns the allowed name the target most resembles, when the
// resemblance qualifies as a typosquat: either the similarity ratio meets
// the threshold, or the name is a single-character substitution or
// homoglyph rewrite of an allowed name.
func (g *ServerWhitelistGuard) typosquatOf(target string) (string, float64, bool) {
	var best string
	var bestRatio float64
	found := false
	for _, allowed := range g.allowed {
		r := similarity(target, allowed)
		if r < g.threshold && !typosquatPattern(allowed, target) {
			continue
		}
		if !found || r > bestRatio {
			best, bestRatio = allowed, r
		}
		found = true
	}
	return best, bestRatio, found
}

// typosquatPattern reports the two classic squat shapes: exactly one
// substituted character at equal length, or a homoglyph rewrite that
// normalizes back to the allowed name.
func typosquatPattern(allowed, suspect string) bool {
	if allowed == suspect {
		return false
	}
	ra, rs := []rune(allowed), []rune(suspect)
	if len(ra) == len(rs) {
		diffs := 0
		for i := range ra {
			if ra[i] != rs[i] {
				diffs++
			}
		}
		if diffs == 1 {
			return true
		}
	}
	return normalizeHomoglyphs(suspect) == allowed
}

// homoglyphs maps visually confusable characters to the letter they imitate.
var homoglyphs = map[rune]rune{
	'0': 'o',
	'1': 'l',
	'|': 'l',
	'@': 'a',
	'3': 'e',
	'$': 's',
}

func normalizeHomoglyphs(s string) string {
	out := []rune(s)
	for i, r := range out {
		if repl, ok := homoglyphs[r]; ok {
			out[i] = repl
		}
	}
	return string(out)
}

// similarity is a Levenshtein-distance ratio normalized to [0, 1], where 1
// means identical strings.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	dist := levenshtein(ra, rb)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return 1 - float64(dist)/float64(longest)
}

// levenshtein computes edit distance with a single rolling row.
func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i, ca := range a {
		cur := make([]int, len(b)+1)
		cur[0] = i + 1
		for j, cb := range b {
			cost := 1
			if ca == cb {
				cost = 0
			}
			cur[j+1] = min3(prev[j]+cost, prev[j+1]+1, cur[j]+1)
		}
		prev = cur
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

var _ engine.Guard = (*ServerWhitelistGuard)(nil)
