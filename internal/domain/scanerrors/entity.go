package scanerrors

import "time"

// Phase enum
type Phase string

const (
	PhasePrepare Phase = "prepare"
	PhaseScan    Phase = "scan"
	PhasePoll    Phase = "poll"
)

// ScanError is a persisted failure of one scan lifecycle
type ScanError struct {
	ID          int64     `json:"id"`
	ScanID      string    `json:"scan_id"`
	ProjectKey  string    `json:"project_key"`
	Phase       Phase     `json:"phase"`
	Message     string    `json:"message"`
	DetailsJSON string    `json:"details_json,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"created_at"`
}
