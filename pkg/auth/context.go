package auth

import "context"

type contextKey int

const decisionContextKey contextKey = iota

// WithDecision records the guard's decision on the request context so
// handlers can report which signal admitted the caller.
func WithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionContextKey, d)
}

// DecisionFromContext returns the decision recorded by a guard, if any.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionContextKey).(Decision)
	return d, ok
}
