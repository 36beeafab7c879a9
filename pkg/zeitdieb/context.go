package zeitdieb

import "context"

type ctxKey struct{}

// NewContext returns a context carrying sw, so code called inside the
// measured scope can reach it with FromContext.
func NewContext(ctx context.Context, sw *StopWatch) context.Context {
	return context.WithValue(ctx, ctxKey{}, sw)
}

// FromContext returns the StopWatch stored in ctx, or nil. A nil StopWatch
// hands out no-op frames, so callers need no check:
//
//	f := zeitdieb.FromContext(ctx).Enter()
//	defer f.Exit()
func FromContext(ctx context.Context) *StopWatch {
	if ctx == nil {
		return nil
	}

	sw, _ := ctx.Value(ctxKey{}).(*StopWatch)

	return sw
}
