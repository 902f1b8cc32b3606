package analyst

import "context"

// Repository port for persisting and querying insights
type Repository interface {
	Save(ctx context.Context, in *Insight) error
	LatestByProject(ctx context.Context, projectKey string) (*Insight, error)
}
