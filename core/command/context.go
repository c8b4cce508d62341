package command

import "context"

type actionCtx struct{}

// WithAction attaches the command action to the context.
func WithAction(ctx context.Context, action Action) context.Context {
	return context.WithValue(ctx, actionCtx{}, action)
}

// ActionFromContext returns the action of the command being handled.
func ActionFromContext(ctx context.Context) Action {
	if a, ok := ctx.Value(actionCtx{}).(Action); ok {
		return a
	}
	return ""
}

type retryCountCtx struct{}

// WithRetryCount attaches the envelope retry count to the context.
func WithRetryCount(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, retryCountCtx{}, n)
}

// RetryCountFromContext returns the retry count of the command being handled.
func RetryCountFromContext(ctx context.Context) int {
	if n, ok := ctx.Value(retryCountCtx{}).(int); ok {
		return n
	}
	return 0
}
