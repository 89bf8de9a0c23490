package engine

import "context"

// Guard is the contract every guard type implements. Guards are stateless
// per invocation except where their design requires shared state (the rug
// pull guard's fingerprint store); all such state is injected, never
// ambient.
type Guard interface {
	// ID returns the configured guard instance id, unique within a route.
	ID() string

	// Type returns the guard kind.
	Type() GuardType

	// Evaluate inspects the input and produces a verdict. Must respect ctx
	// deadlines: the pipeline bounds each invocation by the configured
	// timeout. A returned error is converted through the guard's failure
	// mode; it never aborts the pipeline.
	Evaluate(ctx context.Context, in *Input) (*Verdict, error)
}
