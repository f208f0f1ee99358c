package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/intent"
)

func TestParseHistory(t *testing.T) {
	tests := []struct {
		name    string
		raw     []string
		want    []intent.Turn
		wantErr bool
	}{
		{"empty", nil, []intent.Turn{}, false},
		{
			"roles and text are trimmed",
			[]string{"User: nak letak kereta", "assistant:Boleh, dekat mana?"},
			[]intent.Turn{
				{Role: intent.RoleUser, Text: "nak letak kereta"},
				{Role: intent.RoleAssistant, Text: "Boleh, dekat mana?"},
			},
			false,
		},
		{"text keeps later colons", []string{"user:jam 10:30"}, []intent.Turn{{Role: intent.RoleUser, Text: "jam 10:30"}}, false},
		{"missing role", []string{"hai"}, nil, true},
		{"unknown role", []string{"system:hai"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHistory(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoinArgs(t *testing.T) {
	assert.Equal(t, "sape PM malaysia", joinArgs([]string{" sape", "PM", "malaysia "}))
	assert.Empty(t, joinArgs(nil))
}
