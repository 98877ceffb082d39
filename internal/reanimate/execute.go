package reanimate

import (
	"context"
	"fmt"
)

// Callable is a currently-live function located by a Resolver. Params names
// the parameters the function expects, in order; Fn receives the
// reconstructed arguments keyed by parameter name.
type Callable struct {
	Params []string
	Fn     func(ctx context.Context, args map[string]any) (any, error)
}

// Resolver locates a live callable for a recorded function identity.
// Returning an error (or a nil callable) means the function cannot be found.
type Resolver func(functionIdentity string) (*Callable, error)

// ExecuteReanimated reconstructs a call's arguments and re-invokes the
// original function through the resolver.
//
// The three failure modes are distinct and never merged: a resolver miss is
// FUNCTION_NOT_FOUND, reconstructed arguments that do not cover the
// callable's parameters are SIGNATURE_MISMATCH, and a failure inside the
// callable is EXECUTION_ERROR.
func (e *Engine) ExecuteReanimated(ctx context.Context, callID string, resolve Resolver) (any, error) {
	call, err := e.store.GetCall(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("execute reanimated: %w", err)
	}

	callable, err := resolve(call.Function)
	if err != nil || callable == nil {
		return nil, &ReplayError{
			Code:     ErrCodeFunctionNotFound,
			Message:  "resolver could not locate a live callable",
			CallID:   callID,
			Function: call.Function,
			Err:      err,
		}
	}

	// Arguments are drawn from the call's entry locals by parameter name,
	// through one shared cache so aliasing between arguments survives.
	// Extra locals (variables assigned later in the body) are ignored;
	// a missing parameter is a shape mismatch, not an execution failure.
	m := &materializer{ctx: ctx, engine: e, cache: Cache{}}
	args := make(map[string]any, len(callable.Params))
	for _, param := range callable.Params {
		hash, ok := call.Locals[param]
		if !ok {
			return nil, &ReplayError{
				Code:     ErrCodeSignatureMismatch,
				Message:  fmt.Sprintf("no reconstructed value for parameter %q", param),
				CallID:   callID,
				Function: call.Function,
			}
		}
		v, err := m.build(hash)
		if err != nil {
			return nil, fmt.Errorf("execute reanimated: argument %q: %w", param, err)
		}
		args[param] = v
	}

	out, err := callable.Fn(ctx, args)
	if err != nil {
		return nil, &ReplayError{
			Code:     ErrCodeExecutionError,
			Message:  "reanimated function failed",
			CallID:   callID,
			Function: call.Function,
			Err:      err,
		}
	}
	return out, nil
}
