package scans

import "context"

// Runner port (external scanner execution)
type Runner interface {
	Run(ctx context.Context, req RunRequest) (ScanOutcome, error)
}

// Repository port for scan history
type Repository interface {
	Save(ctx context.Context, r *ScanRecord) error
	Latest(ctx context.Context, limit int) ([]*ScanRecord, error)
}

// LogStore port for archiving scanner output. Returns the stored object URL.
type LogStore interface {
	PutLog(ctx context.Context, key string, body []byte) (string, error)
}
