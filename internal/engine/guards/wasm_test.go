package guards

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/unitone-ai/rampart/internal/engine"
	"github.com/unitone-ai/rampart/internal/mcp"
	"github.com/unitone-ai/rampart/internal/sandbox"
)

// fakeSandbox records the last execution and replays a canned result.
type fakeSandbox struct {
	lastModule string
	lastInput  *sandbox.Input
	lastLimits sandbox.Limits
	result     *sandbox.Result
	err        error
}

func (f *fakeSandbox) Execute(ctx context.Context, module string, in *sandbox.Input, limits sandbox.Limits) (*sandbox.Result, error) {
	f.lastModule = module
	f.lastInput = in
	f.lastLimits = limits
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestWASMGuard_AllowDecision(t *testing.T) {
	fake := &fakeSandbox{result: &sandbox.Result{Decision: "allow"}}
	g := NewWASMGuard("wg", &engine.WASMConfig{
		ModulePath:     "guards/custom.wasm",
		MaxMemoryBytes: 1 << 20,
		MaxFuel:        10_000,
	}, fake)

	verdict, err := g.Evaluate(context.Background(), requestInput(`{"city": "Toronto"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Decision != engine.DecisionAllow {
		t.Errorf("expected allow, got %s", verdict.Decision)
	}

	if fake.lastModule != "guards/custom.wasm" {
		t.Errorf("module = %q", fake.lastModule)
	}
	if fake.lastInput.Phase != "request" {
		t.Errorf("phase = %q", fake.lastInput.Phase)
	}
	if fake.lastLimits.MaxMemoryBytes != 1<<20 || fake.lastLimits.MaxFuel != 10_000 {
		t.Errorf("limits not forwarded: %+v", fake.lastLimits)
	}
}

func TestWASMGuard_BlockDecision(t *testing.T) {
	fake := &fakeSandbox{result: &sandbox.Result{
		Decision: "block",
		Message:  "custom policy violation",
		Detail:   map[string]any{"rule": "r1"},
	}}
	g := NewWASMGuard("wg", &engine.WASMConfig{ModulePath: "m.wasm"}, fake)

	verdict, err := g.Evaluate(context.Background(), requestInput(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Decision != engine.DecisionBlock {
		t.Fatalf("expected block, got %s", verdict.Decision)
	}
	if verdict.Reason.Message != "custom policy violation" {
		t.Errorf("message = %q", verdict.Reason.Message)
	}
	if verdict.Reason.GuardType != engine.TypeWASM {
		t.Errorf("guard type = %s", verdict.Reason.GuardType)
	}
	if verdict.Reason.Detail["rule"] != "r1" {
		t.Errorf("detail = %+v", verdict.Reason.Detail)
	}
}

func TestWASMGuard_ModifyDecision(t *testing.T) {
	modified, _ := json.Marshal(&mcp.Payload{Request: &mcp.ToolCallRequest{
		ToolName:      "send_message",
		ArgumentsJSON: `{"text": "[redacted]"}`,
	}})
	fake := &fakeSandbox{result: &sandbox.Result{
		Decision:        "modify",
		Message:         "rewrote arguments",
		ModifiedPayload: modified,
	}}
	g := NewWASMGuard("wg", &engine.WASMConfig{ModulePath: "m.wasm"}, fake)

	verdict, err := g.Evaluate(context.Background(), requestInput(`{"text": "secret"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Decision != engine.DecisionModify {
		t.Fatalf("expected modify, got %s", verdict.Decision)
	}
	if got := verdict.ModifiedPayload.Request.ArgumentsJSON; got != `{"text": "[redacted]"}` {
		t.Errorf("modified arguments = %q", got)
	}
}

func TestWASMGuard_RuntimeErrorSurfaces(t *testing.T) {
	fake := &fakeSandbox{err: errors.New("fuel exhausted")}
	g := NewWASMGuard("wg", &engine.WASMConfig{ModulePath: "m.wasm"}, fake)

	_, err := g.Evaluate(context.Background(), requestInput(`{}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "m.wasm") {
		t.Errorf("error should name the module: %v", err)
	}
}

func TestWASMGuard_UnknownDecisionIsError(t *testing.T) {
	fake := &fakeSandbox{result: &sandbox.Result{Decision: "maybe"}}
	g := NewWASMGuard("wg", &engine.WASMConfig{ModulePath: "m.wasm"}, fake)

	_, err := g.Evaluate(context.Background(), requestInput(`{}`))
	if err == nil {
		t.Fatal("expected error for unknown decision")
	}
	if !strings.Contains(err.Error(), `"maybe"`) {
		t.Errorf("error should name the decision: %v", err)
	}
}

func TestWASMGuard_DefaultRunnerUnavailable(t *testing.T) {
	g := NewWASMGuard("wg", &engine.WASMConfig{ModulePath: "m.wasm"}, nil)

	_, err := g.Evaluate(context.Background(), requestInput(`{}`))
	if !errors.Is(err, sandbox.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
