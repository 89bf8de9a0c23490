package api

import (
	"encoding/json"
	"time"

	"github.com/unitone-ai/rampart/internal/mcp"
)

// --- POST /v1/guard request/response ---

// EvaluateRequest is the JSON body for POST /v1/guard. Exactly one of the
// payload fields should be set, matching the phase.
type EvaluateRequest struct {
	Route    string `json:"route"`
	Phase    string `json:"phase"`
	ScopeKey string `json:"scope_key,omitempty"`
	Target   string `json:"target,omitempty"`

	Tools      *mcp.ToolList         `json:"tools,omitempty"`
	ToolCall   *mcp.ToolCallRequest  `json:"tool_call,omitempty"`
	ToolResult *mcp.ToolCallResponse `json:"tool_result,omitempty"`
}

// ReasonResp explains a non-allow decision.
type ReasonResp struct {
	GuardID   string         `json:"guard_id"`
	GuardType string         `json:"guard_type"`
	Message   string         `json:"message"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// GuardExecResp records one guard's run within the pipeline.
type GuardExecResp struct {
	GuardID   string  `json:"guard_id"`
	GuardType string  `json:"guard_type"`
	Decision  string  `json:"decision"`
	Error     *string `json:"error,omitempty"`
	TimedOut  bool    `json:"timed_out,omitempty"`
	LatencyMs float32 `json:"latency_ms"`
}

// EvaluateResponse is the JSON body returned by POST /v1/guard. Decision
// is the enforced outcome; on shadow routes it is always "allow" and
// ShadowDecision carries what enforcement would have done.
type EvaluateResponse struct {
	Decision       string             `json:"decision"`
	RequestID      string             `json:"request_id"`
	IsShadow       bool               `json:"is_shadow"`
	ShadowDecision string             `json:"shadow_decision,omitempty"`
	Reason         *ReasonResp        `json:"reason,omitempty"`
	Payload        *mcp.Payload       `json:"payload,omitempty"` // set on modify
	RPCError       *mcp.ErrorResponse `json:"rpc_error,omitempty"`
	Guards         []GuardExecResp    `json:"guards"`
	LatencyMs      float64            `json:"latency_ms"`
	GuardLatencyMs float64            `json:"guard_latency_ms"`
}

// --- Route CRUD ---

// CreateRouteReq is the JSON body for POST /api/rampart/routes.
type CreateRouteReq struct {
	Name   string          `json:"name"`
	Shadow bool            `json:"shadow"`
	Guards json.RawMessage `json:"guards"`
}

// UpdateRouteReq is the JSON body for PATCH /api/rampart/routes/{name}.
type UpdateRouteReq struct {
	Shadow *bool            `json:"shadow,omitempty"`
	Guards *json.RawMessage `json:"guards,omitempty"`
}

// RouteResp is a stored route.
type RouteResp struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Shadow    bool            `json:"shadow"`
	Guards    json.RawMessage `json:"guards"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// --- API key CRUD ---

// CreateKeyReq is the JSON body for POST /api/rampart/keys.
type CreateKeyReq struct {
	Name string `json:"name"`
}

// CreateKeyResp includes the plaintext API key (shown once).
type CreateKeyResp struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"api_key"`
	KeyPrefix string    `json:"key_prefix"`
	CreatedAt time.Time `json:"created_at"`
}

// KeyResp is a stored API key (no plaintext, no hash).
type KeyResp struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	KeyPrefix string    `json:"key_prefix"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
