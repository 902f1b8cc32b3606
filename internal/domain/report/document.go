package report

import "encoding/json"

// StatusNone is what the quality gate reports before the analysis is indexed.
const StatusNone = "NONE"

// Document is the normalized report. It always marshals to exactly four keys,
// in this order, whatever the backend returned.
type Document struct {
	Project           ProjectSection          `json:"project"`
	MetricsSummary    Section[MetricsSummary] `json:"metrics_summary"`
	Issues            []Issue                 `json:"issues"`
	QualityGateStatus Section[QualityGate]    `json:"quality_gate_status"`
}

type ProjectSummary struct {
	Name         string `json:"name"`
	Key          string `json:"key"`
	AnalysisID   string `json:"analysis_id"`
	Status       string `json:"status"`
	AnalysisDate string `json:"analysis_date"`
}

type MetricsSummary struct {
	Bugs                   int     `json:"bugs"`
	Vulnerabilities        int     `json:"vulnerabilities"`
	CodeSmells             int     `json:"code_smells"`
	DuplicatedLinesDensity float64 `json:"duplicated_lines_density"`
	Coverage               float64 `json:"coverage"`
	LinesOfCode            int     `json:"lines_of_code"`
	SqaleIndex             int     `json:"sqale_index"`
}

type Issue struct {
	Key           string `json:"key"`
	Type          string `json:"type"`
	Severity      string `json:"severity"`
	Message       string `json:"message"`
	Component     string `json:"component"`
	Line          *int   `json:"line"`
	EffortMinutes int    `json:"effort_minutes"`
}

type QualityGate struct {
	Status     string          `json:"status"`
	Conditions []GateCondition `json:"conditions"`
}

type GateCondition struct {
	Metric      string `json:"metric"`
	ActualValue string `json:"actual_value"`
	Threshold   string `json:"threshold"`
	Status      string `json:"status"`
}

// ProjectSection is either a summary or the raw error of the component lookup.
type ProjectSection struct {
	Summary *ProjectSummary
	Error   string
}

func (p ProjectSection) MarshalJSON() ([]byte, error) {
	if p.Summary != nil {
		return json.Marshal(p.Summary)
	}
	return json.Marshal(map[string]string{"error": p.Error})
}

func (p *ProjectSection) UnmarshalJSON(b []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		return err
	}
	if raw, ok := probe["error"]; ok {
		p.Summary = nil
		return json.Unmarshal(raw, &p.Error)
	}
	p.Summary = &ProjectSummary{}
	return json.Unmarshal(b, p.Summary)
}

// Section marshals to {} when its sub-query failed.
type Section[T any] struct {
	Value *T
}

func (s Section[T]) MarshalJSON() ([]byte, error) {
	if s.Value == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.Value)
}

func (s *Section[T]) UnmarshalJSON(b []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		return err
	}
	if len(probe) == 0 {
		s.Value = nil
		return nil
	}
	s.Value = new(T)
	return json.Unmarshal(b, s.Value)
}

// Found reports whether the component lookup succeeded.
func (d Document) Found() bool { return d.Project.Summary != nil }

// Ready reports whether the backend has finished indexing the latest analysis.
func (d Document) Ready() bool {
	p := d.Project.Summary
	return p != nil && p.AnalysisID != "" && p.Status != "" && p.Status != StatusNone
}
