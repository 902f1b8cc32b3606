package prompt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_RecomputesCounts(t *testing.T) {
	raw := "```json\n" + `{
		"project_key": "a",
		"quality_gate": "ERROR",
		"counts": {"critical": 9, "high": 9, "medium": 9, "low": 9, "total": 1},
		"findings": [
			{"title": "SQL injection", "severity": "BLOCKER"},
			{"title": "Null deref", "severity": "High"},
			{"title": "Long method", "severity": "minor"},
			{"title": "Todo comment", "severity": "INFO"},
			{"title": "???", "severity": "weird"}
		],
		"advice": ""
	}` + "\n```"

	out, err := Normalize(raw)
	require.NoError(t, err)

	var got Triage
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, Counts{Critical: 1, High: 1, Low: 1, Total: 3}, got.Counts)
	assert.Equal(t, "critical", got.Findings[0].Severity)
	assert.Equal(t, "info", got.Findings[4].Severity)
	assert.NotEmpty(t, got.Advice)
}

func TestNormalize_CapsFindings(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"findings":[`)
	for i := 0; i < 30; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"title":"x","severity":"low"}`)
	}
	b.WriteString(`]}`)

	out, err := Normalize(b.String())
	require.NoError(t, err)

	var got Triage
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got.Findings, maxFindings)
	assert.Equal(t, maxFindings, got.Counts.Total)
	assert.Equal(t, "unknown", got.QualityGate)
}

func TestNormalize_RejectsProse(t *testing.T) {
	_, err := Normalize("Sure! Here is your summary.")
	assert.Error(t, err)
}
