package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfateev/temporal-agent-loop/internal/models"
)

func TestCharEstimator_Count(t *testing.T) {
	est := CharEstimator{}

	assert.Equal(t, 0, est.Count(""))
	assert.Equal(t, 1, est.Count("a"))
	assert.Equal(t, 1, est.Count("abcd"))
	assert.Equal(t, 2, est.Count("abcde"))
	assert.Equal(t, 250, est.Count(strings.Repeat("x", 1000)))
}

func TestCharEstimator_CountsRunesNotBytes(t *testing.T) {
	// four runes, twelve bytes
	assert.Equal(t, 1, CharEstimator{}.Count("日本語だ"))
}

func TestUsage_SplitsInputAndOutput(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, Content: strings.Repeat("u", 40)},
		{Role: models.RoleAssistant, Content: strings.Repeat("a", 20), ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "shell", Input: []byte(`{"command":"ls"}`)},
		}},
		{Role: models.RoleTool, ToolResults: []models.ToolResult{{ToolUseID: "c1", Content: strings.Repeat("r", 8)}}},
	}

	u := Usage(CharEstimator{}, msgs)
	assert.Equal(t, 10+2, u.Input)
	assert.Equal(t, 5+2+4, u.Output)
	assert.Equal(t, u.Input+u.Output, u.Total())
}

func TestUsage_IsIdempotent(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "hello world"},
		{Role: models.RoleAssistant, Content: "hi"},
	}
	assert.Equal(t, Usage(CharEstimator{}, msgs), Usage(CharEstimator{}, msgs))
}

func TestNew(t *testing.T) {
	est, err := New("")
	require.NoError(t, err)
	assert.IsType(t, CharEstimator{}, est)

	_, err = New("bogus")
	assert.Error(t, err)
}
