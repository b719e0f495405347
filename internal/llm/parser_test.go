package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldTable(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "plain key value lines",
			input: "verb: spend\namount: 120k\ncounterparty: McDo",
			want:  map[string]string{"verb": "spend", "amount": "120k", "counterparty": "McDo"},
		},
		{
			name:  "fenced with language tag",
			input: "```action\nverb: income\namount: 500\n```",
			want:  map[string]string{"verb": "income", "amount": "500"},
		},
		{
			name:  "case insensitive keys and noise lines",
			input: "Here is the extraction:\nVerb: spend\nAMOUNT: 42.50\n\nHope that helps!",
			want:  map[string]string{"verb": "spend", "amount": "42.50"},
		},
		{
			name:  "first occurrence wins",
			input: "verb: spend\nverb: income\namount: 10",
			want:  map[string]string{"verb": "spend", "amount": "10"},
		},
		{
			name:  "value containing colon",
			input: "verb: spend\namount: 10\nnote: dinner at 19:30",
			want:  map[string]string{"verb": "spend", "amount": "10", "note": "dinner at 19:30"},
		},
		{
			name:    "missing verb",
			input:   "amount: 120000\ncurrency: VND",
			wantErr: true,
		},
		{
			name:    "empty response",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFieldTable(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRowTable(t *testing.T) {
	input := "```rows\n" +
		"ref | verb | amount | currency | date\n" +
		"TX1 | spend | 52000 | VND | 2025-01-01\n" +
		"TX2 | income | 1,000 | USD | 2025-01-02\n" +
		"```"

	rows, err := parseRowTable(input)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "TX1", rows[0]["ref"])
	assert.Equal(t, "spend", rows[0]["verb"])
	assert.Equal(t, "52000", rows[0]["amount"])
	assert.Equal(t, "income", rows[1]["verb"])
	assert.Equal(t, "2025-01-02", rows[1]["date"])
}

func TestParseRowTableMarkdownPipes(t *testing.T) {
	input := "| ref | verb | amount |\n" +
		"|-----|------|--------|\n" +
		"| TX1 | spend | 100 |\n"

	rows, err := parseRowTable(input)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "spend", rows[0]["verb"])
}

func TestParseRowTableSkipsMalformedRows(t *testing.T) {
	input := "ref | verb | amount\n" +
		"TX1 | spend | 100\n" +
		"TX2 | income\n" +
		"TX3 | spend | 200 | extra | cols\n"

	rows, err := parseRowTable(input)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "TX1", rows[0]["ref"])
}

func TestParseRowTableDashCellsOmitted(t *testing.T) {
	input := "ref | verb | amount | tag\n" +
		"TX1 | spend | 100 | -\n"

	rows, err := parseRowTable(input)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	_, hasTag := rows[0]["tag"]
	assert.False(t, hasTag)
}

func TestParseRowTableMissingVerbColumn(t *testing.T) {
	_, err := parseRowTable("ref | amount\nTX1 | 100\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verb column")
}

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"0.85", 0.85},
		{"85%", 0.85},
		{"1", 1},
		{"95", 0.95},
		{"-0.2", 0},
		{"not a number", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.InDelta(t, tt.want, parseConfidence(tt.input, 0.5), 0.001)
		})
	}
}

func TestCleanMarkdownWrapper(t *testing.T) {
	assert.Equal(t, "verb: spend", cleanMarkdownWrapper("```\nverb: spend\n```"))
	assert.Equal(t, "verb: spend", cleanMarkdownWrapper("```action\nverb: spend\n```"))
	assert.Equal(t, "verb: spend", cleanMarkdownWrapper("verb: spend"))
}
