package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/bryanwahyu/sonarscan-api/internal/domain/analyst"
)

type InsightRepository struct{ db *sql.DB }

func NewInsightRepository(db *sql.DB) *InsightRepository { return &InsightRepository{db: db} }

var _ domain.Repository = (*InsightRepository)(nil)

// Save inserts or updates an insight record
func (r *InsightRepository) Save(ctx context.Context, in *domain.Insight) error {
	const q = `
INSERT INTO sonar_insights
  (id, project_key, analysis_id, result_json, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET
  analysis_id=EXCLUDED.analysis_id,
  result_json=EXCLUDED.result_json;
`
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, q, string(in.ID), in.ProjectKey, stringOrDash(in.AnalysisID), jsonOrEmpty(in.Result), createdAt)
	return err
}

// LatestByProject returns the newest insight for a project, or nil if none.
func (r *InsightRepository) LatestByProject(ctx context.Context, projectKey string) (*domain.Insight, error) {
	const q = `
SELECT id, project_key, analysis_id, result_json::text, created_at
FROM sonar_insights
WHERE project_key=$1
ORDER BY created_at DESC, id DESC
LIMIT 1;
`
	var in domain.Insight
	var id string
	err := r.db.QueryRowContext(ctx, q, projectKey).Scan(&id, &in.ProjectKey, &in.AnalysisID, &in.Result, &in.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	in.ID = domain.InsightID(id)
	in.AnalysisID = dashToEmpty(in.AnalysisID)
	return &in, nil
}
