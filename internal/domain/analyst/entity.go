package analyst

import "time"

// InsightID identifier type
type InsightID string

// Insight is an AI triage summary of one project's report, kept per analysis
// so the provider is asked once per analysis.
type Insight struct {
	ID         InsightID `json:"id"`
	ProjectKey string    `json:"project_key"`
	AnalysisID string    `json:"analysis_id,omitempty"`
	Result     string    `json:"result"` // JSON string from AI
	CreatedAt  time.Time `json:"created_at"`
}
