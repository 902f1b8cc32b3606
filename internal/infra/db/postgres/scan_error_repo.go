package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/sonarscan-api/internal/domain/scanerrors"
)

type ScanErrorRepository struct{ db *sql.DB }

func NewScanErrorRepository(db *sql.DB) *ScanErrorRepository { return &ScanErrorRepository{db: db} }

var _ domain.Repository = (*ScanErrorRepository)(nil)

func (r *ScanErrorRepository) Save(ctx context.Context, e *domain.ScanError) error {
	const q = `
INSERT INTO sonar_scan_errors
  (scan_id, project_key, phase, message, details_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id;
`
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return r.db.QueryRowContext(ctx, q,
		stringOrDash(e.ScanID), stringOrDash(e.ProjectKey), stringOrDash(string(e.Phase)),
		stringOrDash(e.Message), jsonOrEmpty(e.DetailsJSON), created,
	).Scan(&e.ID)
}

func (r *ScanErrorRepository) ListByScan(ctx context.Context, scanID string, limit int) ([]*domain.ScanError, error) {
	const q = `
SELECT id, scan_id, project_key, phase, message, details_json::text, created_at
FROM sonar_scan_errors
WHERE scan_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, scanID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ScanError
	for rows.Next() {
		var e domain.ScanError
		var phase string
		if err := rows.Scan(&e.ID, &e.ScanID, &e.ProjectKey, &phase, &e.Message, &e.DetailsJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Phase = domain.Phase(phase)
		out = append(out, &e)
	}
	return out, rows.Err()
}
