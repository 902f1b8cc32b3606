package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/sonarscan-api/internal/domain/scans"
)

type ScanRepository struct{ db *sql.DB }

func NewScanRepository(db *sql.DB) *ScanRepository { return &ScanRepository{db: db} }

var _ domain.Repository = (*ScanRepository)(nil)

// Save insert/update ScanRecord
func (r *ScanRepository) Save(ctx context.Context, s *domain.ScanRecord) error {
	const q = `
INSERT INTO sonar_scans
(id, project_key, project_name, mode, status, gate_status, log_url, started_at, duration_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
 status = EXCLUDED.status,
 gate_status = EXCLUDED.gate_status,
 log_url = EXCLUDED.log_url,
 duration_ms = EXCLUDED.duration_ms;
`
	started := s.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, q,
		s.ID, s.ProjectKey, stringOrDash(s.ProjectName), string(s.Mode), string(s.Status),
		stringOrDash(s.GateStatus), s.LogURL, started, s.DurationMS,
	)
	return err
}

func (r *ScanRepository) Latest(ctx context.Context, limit int) ([]*domain.ScanRecord, error) {
	const q = `
SELECT id, project_key, project_name, mode, status, gate_status, log_url, started_at, duration_ms
FROM sonar_scans
ORDER BY started_at DESC, id DESC
LIMIT $1;
`
	rows, err := r.db.QueryContext(ctx, q, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.ScanRecord{}
	for rows.Next() {
		var s domain.ScanRecord
		var mode, status string
		if err := rows.Scan(&s.ID, &s.ProjectKey, &s.ProjectName, &mode, &status,
			&s.GateStatus, &s.LogURL, &s.StartedAt, &s.DurationMS); err != nil {
			return nil, err
		}
		s.Mode = domain.Mode(mode)
		s.Status = domain.Status(status)
		s.ProjectName = dashToEmpty(s.ProjectName)
		s.GateStatus = dashToEmpty(s.GateStatus)
		out = append(out, &s)
	}
	return out, rows.Err()
}
