package report

import "encoding/json"

// Backend payload shapes, decoded as SonarQube returns them.

type Component struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Qualifier string `json:"qualifier,omitempty"`
}

type Analysis struct {
	Key  string `json:"key"`
	Date string `json:"date"`
}

// Measure value is kept raw: SonarQube sends numbers as strings, sometimes omits them.
type Measure struct {
	Metric string          `json:"metric"`
	Value  json.RawMessage `json:"value,omitempty"`
}

type RawIssue struct {
	Key       string `json:"key"`
	Type      string `json:"type"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Component string `json:"component"`
	Line      *int   `json:"line,omitempty"`
	Effort    string `json:"effort,omitempty"`
	Debt      string `json:"debt,omitempty"`
}

type Condition struct {
	Status           string `json:"status"`
	MetricKey        string `json:"metricKey"`
	Comparator       string `json:"comparator,omitempty"`
	ErrorThreshold   string `json:"errorThreshold,omitempty"`
	WarningThreshold string `json:"warningThreshold,omitempty"`
	ActualValue      string `json:"actualValue,omitempty"`
}

type ProjectStatus struct {
	Status     string      `json:"status"`
	Conditions []Condition `json:"conditions"`
}
