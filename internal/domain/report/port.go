package report

import "context"

// Backend is the read-only query port to the analysis backend. Every call
// reports failure through its Result and never panics or returns an error.
type Backend interface {
	Component(ctx context.Context, key, token string) Result[Component]
	LatestAnalysis(ctx context.Context, key, token string) Result[[]Analysis]
	Measures(ctx context.Context, key, token string) Result[[]Measure]
	Issues(ctx context.Context, key, token string) Result[[]RawIssue]
	QualityGate(ctx context.Context, key, token string) Result[ProjectStatus]
}
