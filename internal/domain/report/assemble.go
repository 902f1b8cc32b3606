package report

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// MetricKeys is the fixed metric set requested from the backend.
var MetricKeys = []string{
	"bugs",
	"vulnerabilities",
	"code_smells",
	"duplicated_lines_density",
	"coverage",
	"ncloc",
	"sqale_index",
}

// Inputs are the five independent sub-query results for one project key.
type Inputs struct {
	Component   Result[Component]
	Analyses    Result[[]Analysis]
	Measures    Result[[]Measure]
	Issues      Result[[]RawIssue]
	QualityGate Result[ProjectStatus]
}

// Assemble merges the sub-query results into a Document. Every section degrades
// on its own; a failed query only empties its own field.
func Assemble(in Inputs) Document {
	doc := Document{Issues: []Issue{}}

	if in.Measures.OK() {
		doc.MetricsSummary.Value = summarize(in.Measures.Value)
	}

	if in.Issues.OK() {
		for _, raw := range in.Issues.Value {
			doc.Issues = append(doc.Issues, flatten(raw))
		}
	}

	var gateStatus string
	if in.QualityGate.OK() {
		qg := in.QualityGate.Value
		gateStatus = qg.Status
		gate := &QualityGate{Status: qg.Status, Conditions: make([]GateCondition, 0, len(qg.Conditions))}
		for _, c := range qg.Conditions {
			threshold := c.ErrorThreshold
			if threshold == "" {
				threshold = c.WarningThreshold
			}
			gate.Conditions = append(gate.Conditions, GateCondition{
				Metric:      c.MetricKey,
				ActualValue: c.ActualValue,
				Threshold:   threshold,
				Status:      c.Status,
			})
		}
		doc.QualityGateStatus.Value = gate
	}

	switch {
	case !in.Component.OK():
		doc.Project.Error = in.Component.Err
	case in.Component.Value.Key == "":
		doc.Project.Error = "component not found"
	default:
		comp := in.Component.Value
		summary := &ProjectSummary{Name: comp.Name, Key: comp.Key, Status: gateStatus}
		if in.Analyses.OK() && len(in.Analyses.Value) > 0 {
			summary.AnalysisID = in.Analyses.Value[0].Key
			summary.AnalysisDate = in.Analyses.Value[0].Date
		}
		doc.Project.Summary = summary
	}

	return doc
}

func summarize(measures []Measure) *MetricsSummary {
	vals := make(map[string]json.RawMessage, len(measures))
	for _, m := range measures {
		vals[m.Metric] = m.Value
	}
	return &MetricsSummary{
		Bugs:                   toInt(vals["bugs"]),
		Vulnerabilities:        toInt(vals["vulnerabilities"]),
		CodeSmells:             toInt(vals["code_smells"]),
		DuplicatedLinesDensity: toFloat(vals["duplicated_lines_density"]),
		Coverage:               toFloat(vals["coverage"]),
		LinesOfCode:            toInt(vals["ncloc"]),
		SqaleIndex:             toInt(vals["sqale_index"]),
	}
}

func flatten(raw RawIssue) Issue {
	effort := raw.Effort
	if effort == "" {
		effort = raw.Debt
	}
	return Issue{
		Key:           raw.Key,
		Type:          raw.Type,
		Severity:      raw.Severity,
		Message:       raw.Message,
		Component:     raw.Component,
		Line:          raw.Line,
		EffortMinutes: EffortMinutes(effort),
	}
}

// toFloat accepts a JSON number or a numeric string; anything else is 0.
func toFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func toInt(raw json.RawMessage) int {
	return int(toFloat(raw))
}

var effortPart = regexp.MustCompile(`(\d+)\s*(d|h|min)`)

// EffortMinutes converts SonarQube effort strings ("5min", "1h 30min", "2d")
// into minutes. A day is 8 hours, as SonarQube counts it.
func EffortMinutes(effort string) int {
	total := 0
	for _, m := range effortPart.FindAllStringSubmatch(effort, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		switch m[2] {
		case "d":
			total += n * 8 * 60
		case "h":
			total += n * 60
		case "min":
			total += n
		}
	}
	return total
}
