package ai

import "context"

// Client turns a normalized report (JSON) into a JSON triage summary.
type Client interface {
	Summarize(ctx context.Context, reportJSON string) (string, error)
}
