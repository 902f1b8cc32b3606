package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
)

const maxFindings = 20

type Finding struct {
	Title          string `json:"title"`
	Severity       string `json:"severity"`
	Summary        string `json:"summary"`
	Recommendation string `json:"recommendation"`
}

type Counts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Triage is the summary shape requested from the model.
type Triage struct {
	ProjectKey  string    `json:"project_key"`
	QualityGate string    `json:"quality_gate"`
	Counts      Counts    `json:"counts"`
	Findings    []Finding `json:"findings"`
	Advice      string    `json:"advice"`
}

// sonar severities the model sometimes echoes back unmapped
var severityAlias = map[string]string{
	"blocker": "critical",
	"major":   "medium",
	"minor":   "low",
}

// Normalize parses a model reply and makes it consistent with the schema:
// lowercase mapped severities, counts recomputed from findings (info not
// counted), findings capped, advice never empty.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var t Triage
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return "", fmt.Errorf("model reply is not valid triage JSON: %w", err)
	}

	if len(t.Findings) > maxFindings {
		t.Findings = t.Findings[:maxFindings]
	}
	if t.Findings == nil {
		t.Findings = []Finding{}
	}
	t.Counts = Counts{}
	for i := range t.Findings {
		sev := strings.ToLower(strings.TrimSpace(t.Findings[i].Severity))
		if alias, ok := severityAlias[sev]; ok {
			sev = alias
		}
		switch sev {
		case "critical":
			t.Counts.Critical++
		case "high":
			t.Counts.High++
		case "medium":
			t.Counts.Medium++
		case "low":
			t.Counts.Low++
		default:
			sev = "info"
		}
		t.Findings[i].Severity = sev
	}
	t.Counts.Total = t.Counts.Critical + t.Counts.High + t.Counts.Medium + t.Counts.Low
	if t.QualityGate == "" {
		t.QualityGate = "unknown"
	}

	if strings.TrimSpace(t.Advice) == "" {
		switch {
		case t.Counts.Critical > 0:
			t.Advice = "Fix blocker issues before the next release and re-run the scan."
		case t.Counts.High+t.Counts.Medium > 0:
			t.Advice = "Schedule the high and medium findings and keep the quality gate green."
		default:
			t.Advice = "No significant findings. Keep scanning on every change."
		}
	}

	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal triage: %w", err)
	}
	return string(b), nil
}
