package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlanSearch(t *testing.T) {
	p, err := ParsePlan(`{"action":"search","query":"weather today","reason":"need current data","summary":"user asks about weather"}`, true)
	require.NoError(t, err)
	assert.Equal(t, ActionSearch, p.Action)
	assert.Equal(t, "weather today", p.Query)
	assert.Equal(t, "user asks about weather", p.Summary)
}

func TestParsePlanStopWithSelection(t *testing.T) {
	p, err := ParsePlan(`{"action":"stop","selectedIds":["1.1","2.1"]}`, false)
	require.NoError(t, err)
	assert.Equal(t, ActionStop, p.Action)
	assert.Equal(t, []string{"1.1", "2.1"}, p.SelectedIDs)
}

func TestParsePlanToleratesFencesAndProse(t *testing.T) {
	content := "Sure, here is my decision:\n```json\n{\"action\":\"stop\"}\n```\nLet me know."
	p, err := ParsePlan(content, false)
	require.NoError(t, err)
	assert.Equal(t, ActionStop, p.Action)
}

func TestParsePlanNormalizesAction(t *testing.T) {
	p, err := ParsePlan(`{"action":" SEARCH ","query":"x"}`, false)
	require.NoError(t, err)
	assert.Equal(t, ActionSearch, p.Action)
}

func TestParsePlanRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no json", "just some text"},
		{"unknown action", `{"action":"browse"}`},
		{"search without query", `{"action":"search"}`},
		{"broken json", `{"action":"stop"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePlan(tc.content, false)
			require.Error(t, err)
		})
	}
}

func TestParsePlanRequiresSummaryOnFirstCall(t *testing.T) {
	_, err := ParsePlan(`{"action":"stop"}`, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summary")

	_, err = ParsePlan(`{"action":"stop"}`, false)
	require.NoError(t, err)
}
