package engine

import (
	"context"
	"sort"
	"time"

	"github.com/unitone-ai/rampart/internal/mcp"
	"go.uber.org/zap"
)

// BuiltGuard pairs a guard with the configuration that produced it; the
// pipeline needs the config for ordering, phase filtering, timeouts and
// failure-mode handling.
type BuiltGuard struct {
	Config GuardConfig
	Guard  Guard
}

// ScopeReleaser is implemented by guards that hold per-session state.
type ScopeReleaser interface {
	ReleaseScope(scopeKey string)
}

// GuardExecution records one guard's run within a pipeline invocation,
// for audit events and debugging.
type GuardExecution struct {
	GuardID   string
	GuardType GuardType
	Decision  string // decision, or the failure-mode fallback on error
	Err       string // empty unless the guard failed
	TimedOut  bool
	LatencyMs float32
}

// Result is one pipeline invocation's outcome: always exactly one Verdict,
// plus the per-guard execution trail.
type Result struct {
	Verdict    *Verdict
	Executions []GuardExecution
	Elapsed    time.Duration
}

// Pipeline executes the configured guards of one route against MCP events.
// Guards run sequentially, ordered by priority (stable on ties): later
// guards must see the cumulative effect of earlier modify verdicts, and a
// block short-circuits the rest.
type Pipeline struct {
	route  string
	shadow bool
	guards []BuiltGuard
	logger *zap.Logger
}

// NewPipeline builds a pipeline over already-constructed guards. The guard
// slice is re-sorted by priority ascending; ties keep config order.
func NewPipeline(route string, shadow bool, guards []BuiltGuard, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	sorted := make([]BuiltGuard, len(guards))
	copy(sorted, guards)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Config.Priority < sorted[j].Config.Priority
	})
	return &Pipeline{route: route, shadow: shadow, guards: sorted, logger: logger}
}

// Route returns the route name this pipeline serves.
func (p *Pipeline) Route() string { return p.route }

// Shadow reports whether the route runs in shadow mode: verdicts are
// computed and recorded but the caller enforces allow.
func (p *Pipeline) Shadow() bool { return p.shadow }

// GuardCount returns the number of active guards.
func (p *Pipeline) GuardCount() int { return len(p.guards) }

// Evaluate runs the guards selected for the phase and combines their
// verdicts into exactly one decision. Guard errors and timeouts never
// abort the run: they are converted through the guard's failure mode
// (fail_closed blocks, fail_open skips) and the pipeline continues or
// short-circuits accordingly.
func (p *Pipeline) Evaluate(ctx context.Context, phase Phase, scopeKey, target string, payload *mcp.Payload) *Result {
	start := time.Now()

	res := &Result{}
	current := payload
	modified := false
	var lastModifier *Reason

	for _, bg := range p.guards {
		if !bg.Config.RunsOnPhase(phase) {
			continue
		}

		in := &Input{
			Phase:    phase,
			ScopeKey: scopeKey,
			Route:    p.route,
			Target:   target,
			Payload:  current,
		}

		verdict, exec := p.runGuard(ctx, bg, in)
		res.Executions = append(res.Executions, exec)

		if verdict == nil {
			// fail_open: skip this guard's effect entirely.
			continue
		}

		switch verdict.Decision {
		case DecisionBlock:
			// First block wins; later guards never run and earlier
			// modifications are discarded with the withheld payload.
			res.Verdict = verdict
			res.Elapsed = time.Since(start)
			return res
		case DecisionModify:
			if verdict.ModifiedPayload != nil {
				current = verdict.ModifiedPayload
				modified = true
				lastModifier = verdict.Reason
			}
		}
	}

	if modified {
		res.Verdict = &Verdict{
			Decision:        DecisionModify,
			Reason:          lastModifier,
			ModifiedPayload: current,
		}
	} else {
		res.Verdict = Allow()
	}
	res.Elapsed = time.Since(start)
	return res
}

// guardOutput carries a guard goroutine's result back to the pipeline.
type guardOutput struct {
	verdict *Verdict
	err     error
}

// runGuard executes one guard bounded by its configured timeout. On error
// or timeout the failure mode decides the outcome: fail_closed returns a
// synthetic block verdict, fail_open returns nil (guard skipped). A guard
// that ignores cancellation keeps running in the background and its late
// result is discarded; the pipeline never waits past the deadline.
func (p *Pipeline) runGuard(ctx context.Context, bg BuiltGuard, in *Input) (*Verdict, GuardExecution) {
	cfg := bg.Config
	exec := GuardExecution{GuardID: cfg.ID, GuardType: cfg.Type}
	start := time.Now()

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = DefaultTimeoutMs * time.Millisecond
	}
	gctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan guardOutput, 1)
	go func() {
		verdict, err := bg.Guard.Evaluate(gctx, in)
		ch <- guardOutput{verdict: verdict, err: err}
	}()

	var out guardOutput
	select {
	case out = <-ch:
	case <-gctx.Done():
		exec.TimedOut = true
		out.err = gctx.Err()
	}
	exec.LatencyMs = float32(time.Since(start)) / float32(time.Millisecond)

	if out.err != nil || out.verdict == nil {
		if out.err != nil {
			exec.Err = out.err.Error()
		} else {
			exec.Err = "guard returned no verdict"
		}
		p.logger.Warn("guard failed",
			zap.String("route", p.route),
			zap.String("guard_id", cfg.ID),
			zap.String("failure_mode", cfg.EffectiveFailureMode().String()),
			zap.Bool("timed_out", exec.TimedOut),
			zap.String("error", exec.Err),
		)
		if cfg.EffectiveFailureMode() == FailOpen {
			exec.Decision = "allow"
			return nil, exec
		}
		exec.Decision = "block"
		return Block(cfg.ID, cfg.Type, "guard "+cfg.ID+" failed: "+exec.Err, map[string]any{
			"failure_mode": "fail_closed",
			"timed_out":    exec.TimedOut,
		}), exec
	}

	exec.Decision = out.verdict.Decision.String()
	return out.verdict, exec
}

// ReleaseScope notifies stateful guards that a session ended so its
// per-session baselines are dropped. New evaluations for the same scope
// key start fresh.
func (p *Pipeline) ReleaseScope(scopeKey string) {
	for _, bg := range p.guards {
		if r, ok := bg.Guard.(ScopeReleaser); ok {
			r.ReleaseScope(scopeKey)
		}
	}
}
