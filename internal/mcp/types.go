// Package mcp holds the parsed Model Context Protocol payloads the guard
// pipeline operates on. The transport layer owns wire parsing and session
// management; this package only models the slices of MCP traffic that
// guards inspect.
package mcp

import "encoding/json"

// Tool is one entry of a tools/list response.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
	// Server identifies the backend that advertised this tool. Set by the
	// routing layer when aggregating tool lists from multiple backends.
	Server string `json:"server,omitempty"`
}

// ToolList is the tool inventory returned by a backend (or an aggregate
// across backends) for a tools/list call.
type ToolList struct {
	Tools []Tool `json:"tools"`
}

// ToolCallRequest is a parsed tools/call request on its way upstream.
type ToolCallRequest struct {
	Server        string `json:"server,omitempty"`
	ToolName      string `json:"name"`
	ArgumentsJSON string `json:"arguments_json,omitempty"`
}

// ToolCallResponse is a parsed tools/call result on its way back to the
// client. Content is the flattened text content of the result.
type ToolCallResponse struct {
	Server   string `json:"server,omitempty"`
	ToolName string `json:"name,omitempty"`
	Content  string `json:"content"`
	IsError  bool   `json:"is_error,omitempty"`
}

// Payload is the single-variant union handed to the pipeline. Exactly one
// field is non-nil: ToolList for the tools_list phase, Request for
// request/tool_invoke, Response for the response phase.
type Payload struct {
	ToolList *ToolList         `json:"tools,omitempty"`
	Request  *ToolCallRequest  `json:"tool_call,omitempty"`
	Response *ToolCallResponse `json:"tool_result,omitempty"`
}

// Clone returns a deep copy of the payload. Guards that modify traffic
// (PII masking) clone first so earlier readers never observe the rewrite.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}
	out := &Payload{}
	if p.ToolList != nil {
		tools := make([]Tool, len(p.ToolList.Tools))
		for i, t := range p.ToolList.Tools {
			tools[i] = t
			if t.InputSchema != nil {
				tools[i].InputSchema = cloneMap(t.InputSchema)
			}
		}
		out.ToolList = &ToolList{Tools: tools}
	}
	if p.Request != nil {
		req := *p.Request
		out.Request = &req
	}
	if p.Response != nil {
		resp := *p.Response
		out.Response = &resp
	}
	return out
}

// cloneMap deep-copies a JSON-shaped map via marshal/unmarshal. Schemas are
// small and this only runs on the modify path.
func cloneMap(m map[string]any) map[string]any {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
