// Package sandbox defines the execution boundary for WASM guards. The
// pipeline treats the sandbox as an external collaborator: any conforming
// runtime (a WASM engine, a subprocess, a test fake) satisfies Sandbox.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnavailable is returned when no sandbox runtime is configured.
var ErrUnavailable = errors.New("sandbox runtime not configured")

// Limits bounds one module execution.
type Limits struct {
	MaxMemoryBytes uint64
	// MaxFuel caps executed instructions so a hostile or buggy module
	// cannot run away inside the request path.
	MaxFuel uint64
}

// Input is the payload handed to a guard module.
type Input struct {
	Phase   string            `json:"phase"`
	Payload json.RawMessage   `json:"payload"`
	Config  map[string]string `json:"config,omitempty"`
}

// Result is a module's verdict in the same shape native guards produce.
type Result struct {
	Decision string         `json:"decision"` // "allow", "block", or "modify"
	Message  string         `json:"message,omitempty"`
	Detail   map[string]any `json:"detail,omitempty"`
	// ModifiedPayload replaces the inspected payload when Decision is
	// "modify".
	ModifiedPayload json.RawMessage `json:"modified_payload,omitempty"`
}

// Sandbox executes a guard module under resource limits.
type Sandbox interface {
	Execute(ctx context.Context, modulePath string, in *Input, lim Limits) (*Result, error)
}

// Unavailable is the default Sandbox when no runtime is wired in. Every
// execution fails with ErrUnavailable, which the pipeline converts through
// the guard's failure mode.
type Unavailable struct{}

func (Unavailable) Execute(context.Context, string, *Input, Limits) (*Result, error) {
	return nil, ErrUnavailable
}

var _ Sandbox = Unavailable{}
