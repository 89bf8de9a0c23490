package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/unitone-ai/rampart/internal/engine"
	"github.com/unitone-ai/rampart/internal/mcp"
	"github.com/unitone-ai/rampart/internal/storage"
)

// handleEvaluate implements POST /v1/guard.
// Auth middleware has already validated the Bearer token.
func (d *Dependencies) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req EvaluateRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Route == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "route is required"})
		return
	}
	phase, ok := engine.ParsePhase(req.Phase)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "phase must be one of request, response, tools_list, tool_invoke"})
		return
	}

	payload := &mcp.Payload{
		ToolList: req.Tools,
		Request:  req.ToolCall,
		Response: req.ToolResult,
	}
	if payload.ToolList == nil && payload.Request == nil && payload.Response == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "one of tools, tool_call, tool_result is required"})
		return
	}

	pipeline := d.Provider.Route(req.Route)
	if pipeline == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "unknown route"})
		return
	}

	result := pipeline.Evaluate(r.Context(), phase, req.ScopeKey, req.Target, payload)
	realDecision := result.Verdict.Decision

	// Shadow mode override
	enforced := realDecision
	isShadow := false
	if pipeline.Shadow() && realDecision != engine.DecisionAllow {
		isShadow = true
		enforced = engine.DecisionAllow
	}

	requestID := uuid.New().String()
	guardLatencyMs := float64(result.Elapsed) / float64(time.Millisecond)

	// Fire-and-forget: write guard event to ClickHouse
	d.writeGuardEvent(&req, requestID, result, isShadow, float32(guardLatencyMs))

	resp := EvaluateResponse{
		Decision:       enforced.String(),
		RequestID:      requestID,
		IsShadow:       isShadow,
		Guards:         executionsResp(result.Executions),
		GuardLatencyMs: guardLatencyMs,
	}
	if isShadow {
		resp.ShadowDecision = realDecision.String()
	}
	if result.Verdict.Reason != nil {
		resp.Reason = &ReasonResp{
			GuardID:   result.Verdict.Reason.GuardID,
			GuardType: string(result.Verdict.Reason.GuardType),
			Message:   result.Verdict.Reason.Message,
			Detail:    result.Verdict.Reason.Detail,
		}
	}
	switch enforced {
	case engine.DecisionModify:
		resp.Payload = result.Verdict.ModifiedPayload
	case engine.DecisionBlock:
		rpcErr := mcp.BlockError(targetFor(&req), string(result.Verdict.Reason.GuardType),
			result.Verdict.Reason.Message)
		resp.RPCError = &rpcErr
	}

	resp.LatencyMs = float64(time.Since(start)) / float64(time.Millisecond)
	writeJSON(w, http.StatusOK, resp)
}

// handleReleaseSession implements DELETE /v1/sessions/{scope_key}. It
// drops per-session guard state (rug pull baselines) across every route.
func (d *Dependencies) handleReleaseSession(w http.ResponseWriter, r *http.Request) {
	scopeKey := r.PathValue("scope_key")
	if scopeKey == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "scope_key is required"})
		return
	}
	d.Provider.ReleaseScope(scopeKey)
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func executionsResp(execs []engine.GuardExecution) []GuardExecResp {
	out := make([]GuardExecResp, 0, len(execs))
	for _, e := range execs {
		ge := GuardExecResp{
			GuardID:   e.GuardID,
			GuardType: string(e.GuardType),
			Decision:  e.Decision,
			TimedOut:  e.TimedOut,
			LatencyMs: e.LatencyMs,
		}
		if e.Err != "" {
			errStr := e.Err
			ge.Error = &errStr
		}
		out = append(out, ge)
	}
	return out
}

// targetFor picks the server identity used in the JSON-RPC block error.
func targetFor(req *EvaluateRequest) string {
	if req.ToolCall != nil && req.ToolCall.Server != "" {
		return req.ToolCall.Server
	}
	if req.ToolResult != nil && req.ToolResult.Server != "" {
		return req.ToolResult.Server
	}
	return req.Target
}

// writeGuardEvent builds a GuardEvent and fires it to the async writer.
func (d *Dependencies) writeGuardEvent(
	req *EvaluateRequest,
	requestID string,
	result *engine.Result,
	isShadow bool,
	latencyMs float32,
) {
	ids := make([]string, len(result.Executions))
	decisions := make([]string, len(result.Executions))
	latencies := make([]float32, len(result.Executions))
	timedOut := make([]bool, len(result.Executions))
	for i, e := range result.Executions {
		ids[i] = e.GuardID
		decisions[i] = e.Decision
		latencies[i] = e.LatencyMs
		timedOut[i] = e.TimedOut
	}

	var toolName string
	switch {
	case req.ToolCall != nil:
		toolName = req.ToolCall.ToolName
	case req.ToolResult != nil:
		toolName = req.ToolResult.ToolName
	}

	raw, _ := json.Marshal(EvaluateRequest{
		Tools:      req.Tools,
		ToolCall:   req.ToolCall,
		ToolResult: req.ToolResult,
	})

	event := &storage.GuardEvent{
		RequestID:      requestID,
		Timestamp:      time.Now(),
		Route:          req.Route,
		Phase:          req.Phase,
		ScopeKey:       req.ScopeKey,
		Target:         targetFor(req),
		ToolName:       toolName,
		PayloadPreview: storage.TruncatePayload(string(raw), storage.PayloadPreviewLength),
		PayloadHash:    storage.HashPayload(raw),
		PayloadSize:    uint32(len(raw)),
		Decision:       result.Verdict.Decision.String(),
		IsShadow:       isShadow,
		GuardIDs:       ids,
		GuardDecisions: decisions,
		GuardLatencies: latencies,
		GuardTimedOut:  timedOut,
		LatencyMs:      latencyMs,
	}
	if result.Verdict.Reason != nil {
		event.GuardID = result.Verdict.Reason.GuardID
		event.GuardType = string(result.Verdict.Reason.GuardType)
		event.Reason = result.Verdict.Reason.Message
	}

	d.Writer.Write(event)
}
