package guards

import (
	"context"

	"github.com/unitone-ai/rampart/internal/engine"
	"github.com/unitone-ai/rampart/internal/pii"
)

// defaultRejectionMessage when the route config doesn't supply one.
const defaultRejectionMessage = "request rejected: payload contains personal information"

// PIIGuard detects personal information in tool-call arguments and results
// and either masks it in place or rejects the interaction.
type PIIGuard struct {
	id        string
	types     []pii.Type
	mask      bool
	minScore  float32
	rejection string
}

// NewPIIGuard builds a guard from a validated config.
func NewPIIGuard(id string, cfg *engine.PIIConfig) *PIIGuard {
	types := make([]pii.Type, 0, len(cfg.Detect))
	for _, s := range cfg.Detect {
		if t, ok := pii.ParseType(s); ok {
			types = append(types, t)
		}
	}
	rejection := cfg.RejectionMessage
	if rejection == "" {
		rejection = defaultRejectionMessage
	}
	return &PIIGuard{
		id:        id,
		types:     types,
		mask:      cfg.Action == "mask",
		minScore:  cfg.MinScore,
		rejection: rejection,
	}
}

func (g *PIIGuard) ID() string { return g.id }

func (g *PIIGuard) Type() engine.GuardType { return engine.TypePII }

func (g *PIIGuard) Evaluate(ctx context.Context, in *engine.Input) (*engine.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, ok := scannableText(in)
	if !ok {
		return engine.Allow(), nil
	}

	spans := pii.Detect(text, g.types, g.minScore)
	if len(spans) == 0 {
		return engine.Allow(), nil
	}

	detected := pii.Types(spans)

	if !g.mask {
		// Reject: report the detected types, never the matched values, so
		// the PII is not re-leaked through logs or error responses.
		return engine.Block(g.id, engine.TypePII, g.rejection, map[string]any{
			"detected_types": detected,
			"span_count":     len(spans),
		}), nil
	}

	masked := pii.Mask(text, spans)
	modified := in.Payload.Clone()
	switch {
	case modified.Request != nil:
		modified.Request.ArgumentsJSON = masked
	case modified.Response != nil:
		modified.Response.Content = masked
	}
	return engine.Modify(g.id, engine.TypePII, "personal information masked", map[string]any{
		"detected_types": detected,
		"span_count":     len(spans),
	}, modified), nil
}

// scannableText extracts the text payload this guard inspects: tool-call
// arguments on the way up, result content on the way back. Tool lists are
// not in scope for PII scanning.
func scannableText(in *engine.Input) (string, bool) {
	if in.Payload == nil {
		return "", false
	}
	if in.Payload.Request != nil {
		return in.Payload.Request.ArgumentsJSON, in.Payload.Request.ArgumentsJSON != ""
	}
	if in.Payload.Response != nil {
		return in.Payload.Response.Content, in.Payload.Response.Content != ""
	}
	return "", false
}

var _ engine.Guard = (*PIIGuard)(nil)
