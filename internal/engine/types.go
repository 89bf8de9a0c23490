package engine

import "github.com/unitone-ai/rampart/internal/mcp"

// Decision is the pipeline's enforcement outcome for one MCP interaction.
type Decision int

const (
	DecisionAllow Decision = iota + 1
	DecisionBlock
	DecisionModify
)

// String returns the lowercase decision name.
func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionBlock:
		return "block"
	case DecisionModify:
		return "modify"
	default:
		return "unspecified"
	}
}

// Phase tags which leg of an MCP interaction is being inspected.
type Phase int

const (
	PhaseUnspecified Phase = iota
	PhaseRequest           // request
	PhaseResponse          // response
	PhaseToolsList         // tools_list
	PhaseToolInvoke        // tool_invoke
)

// String returns the configuration-facing phase name.
func (p Phase) String() string {
	switch p {
	case PhaseRequest:
		return "request"
	case PhaseResponse:
		return "response"
	case PhaseToolsList:
		return "tools_list"
	case PhaseToolInvoke:
		return "tool_invoke"
	default:
		return "unspecified"
	}
}

// ParsePhase maps a configuration string to a Phase.
func ParsePhase(s string) (Phase, bool) {
	switch s {
	case "request":
		return PhaseRequest, true
	case "response":
		return PhaseResponse, true
	case "tools_list":
		return PhaseToolsList, true
	case "tool_invoke":
		return PhaseToolInvoke, true
	}
	return PhaseUnspecified, false
}

// FailureMode governs what a guard error or timeout converts to.
type FailureMode int

const (
	// FailClosed treats an erroring guard as a block. This is the default:
	// ambiguous failures deny rather than silently pass traffic through.
	FailClosed FailureMode = iota
	FailOpen
)

// String returns the configuration-facing failure mode name.
func (f FailureMode) String() string {
	if f == FailOpen {
		return "fail_open"
	}
	return "fail_closed"
}

// Reason explains a non-allow verdict.
type Reason struct {
	GuardID   string         `json:"guard_id"`
	GuardType GuardType      `json:"guard_type"`
	Message   string         `json:"message"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Verdict is the pipeline's decision for one invocation. Verdicts are
// transient: produced and consumed within a single request/response cycle,
// never persisted.
type Verdict struct {
	Decision Decision
	Reason   *Reason // nil when Decision is allow
	// ModifiedPayload is set only when Decision is modify; the transport
	// layer forwards it in place of the original payload.
	ModifiedPayload *mcp.Payload
}

// Allow is the zero-threat verdict.
func Allow() *Verdict {
	return &Verdict{Decision: DecisionAllow}
}

// Block builds a blocking verdict with a structured reason.
func Block(guardID string, guardType GuardType, message string, detail map[string]any) *Verdict {
	return &Verdict{
		Decision: DecisionBlock,
		Reason: &Reason{
			GuardID:   guardID,
			GuardType: guardType,
			Message:   message,
			Detail:    detail,
		},
	}
}

// Modify builds a payload-rewriting verdict.
func Modify(guardID string, guardType GuardType, message string, detail map[string]any, payload *mcp.Payload) *Verdict {
	return &Verdict{
		Decision: DecisionModify,
		Reason: &Reason{
			GuardID:   guardID,
			GuardType: guardType,
			Message:   message,
			Detail:    detail,
		},
		ModifiedPayload: payload,
	}
}

// Input is the per-invocation context handed to each guard.
type Input struct {
	Phase Phase
	// ScopeKey identifies the calling session; the rug pull guard combines
	// it with the route to key session-scoped baselines.
	ScopeKey string
	Route    string
	// Target is the backend server id the routing layer selected for this
	// interaction, when one applies.
	Target  string
	Payload *mcp.Payload
}

// Target server identity for reason messages: prefer the payload's own
// server field, fall back to the routed target.
func (in *Input) TargetServer() string {
	if in.Payload != nil {
		if in.Payload.Request != nil && in.Payload.Request.Server != "" {
			return in.Payload.Request.Server
		}
		if in.Payload.Response != nil && in.Payload.Response.Server != "" {
			return in.Payload.Response.Server
		}
	}
	return in.Target
}
