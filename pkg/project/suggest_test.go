package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var candidates = []string{"3.8", "3.9", "3.10", "3.11", "3.12"}

func TestMatchingVersions(t *testing.T) {
	tests := []struct {
		constraint string
		want       []string
	}{
		{"", candidates},
		{"*", candidates},
		{">=3.9", []string{"3.9", "3.10", "3.11", "3.12"}},
		{">=3.8,<3.11", []string{"3.8", "3.9", "3.10"}},
		{">= 3.8, < 3.11", []string{"3.8", "3.9", "3.10"}},
		{"~=3.10", []string{"3.10", "3.11", "3.12"}},
		{"~=3.10.2", nil},
		{"^3.9", []string{"3.9", "3.10", "3.11", "3.12"}},
		{"~3.11", []string{"3.11"}},
		{"==3.11.*", []string{"3.11"}},
		{"==3.10", []string{"3.10"}},
		{"3.12", []string{"3.12"}},
		{">=3.8,!=3.9", []string{"3.8", "3.10", "3.11", "3.12"}},
		{"~3.8 || ^3.11", []string{"3.8", "3.11", "3.12"}},
		{">=3.13", nil},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			got, err := MatchingVersions(tt.constraint, candidates)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchingVersionsInvalid(t *testing.T) {
	_, err := MatchingVersions(">=three", candidates)
	assert.Error(t, err)
}

func TestSuggestions(t *testing.T) {
	p := &Profile{Tool: ToolPoetry, RequiresPython: ">=3.11"}
	got, err := p.Suggestions()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "workflows.use-poetry", got[0].Key.String())
	assert.Equal(t, "true", got[0].Value)
	assert.Equal(t, "workflows.python-versions", got[1].Key.String())
	assert.Equal(t, "3.11 3.12", got[1].Value)
	assert.Equal(t, "workflows.python-versions=3.11 3.12 (requires-python >=3.11)", got[1].String())

	got, err = (&Profile{Tool: ToolUv, RequiresPython: ">=3.13"}).Suggestions()
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = (*Profile)(nil).Suggestions()
	require.NoError(t, err)
	assert.Empty(t, got)
}
