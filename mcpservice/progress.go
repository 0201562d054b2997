package mcpservice

import "context"

// ProgressReporter reports progress of a long-running tool call. The engine
// installs one on the request context when the client attached a progress
// token; each Report becomes a notifications/progress message.
type ProgressReporter interface {
	Report(ctx context.Context, progress, total float64) error
}

// ProgressReporterFunc adapts a function to ProgressReporter.
type ProgressReporterFunc func(ctx context.Context, progress, total float64) error

func (f ProgressReporterFunc) Report(ctx context.Context, progress, total float64) error {
	return f(ctx, progress, total)
}

type progressKey struct{}

// WithProgressReporter returns a new context carrying the provided reporter.
func WithProgressReporter(ctx context.Context, pr ProgressReporter) context.Context {
	if pr == nil {
		return ctx
	}
	return context.WithValue(ctx, progressKey{}, pr)
}

// ProgressFrom retrieves a ProgressReporter from the context if present.
func ProgressFrom(ctx context.Context) (ProgressReporter, bool) {
	pr, ok := ctx.Value(progressKey{}).(ProgressReporter)
	return pr, ok && pr != nil
}
