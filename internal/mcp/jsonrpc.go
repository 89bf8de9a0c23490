package mcp

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC 2.0 internal error code. MCP clients receive guard denials as
// protocol-level errors, not transport failures, so they can tell a
// security block apart from a broken connection.
const internalErrorCode = -32603

// RPCError is the error member of a JSON-RPC 2.0 error response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is a full JSON-RPC 2.0 error response body.
type ErrorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Error   RPCError        `json:"error"`
}

// BlockError synthesizes the JSON-RPC error response the transport layer
// sends when the pipeline denies an MCP message.
func BlockError(target, guardType, reason string) ErrorResponse {
	return ErrorResponse{
		JSONRPC: "2.0",
		Error: RPCError{
			Code:    internalErrorCode,
			Message: fmt.Sprintf("Security guard denied for server '%s': %s %s", target, guardType, reason),
		},
	}
}
