package contextmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfateev/temporal-agent-loop/internal/models"
)

func testConfig(maxTokens, keep int) models.ContextConfig {
	return models.ContextConfig{
		MaxContextTokens: maxTokens,
		CompactThreshold: 0.8,
		PruneThreshold:   0.7,
		MessagesToKeep:   keep,
		BufferPercentage: 0.1,
	}
}

// conversation returns n alternating user/assistant messages, each with
// chars characters of content.
func conversation(n, chars int) []models.Message {
	msgs := make([]models.Message, n)
	for i := range msgs {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msgs[i] = models.Message{Role: role, Content: strings.Repeat(string(rune('a'+i%26)), chars)}
	}
	return msgs
}

func fixedSummary(text string) Summarizer {
	return SummarizerFunc(func(ctx context.Context, messages []models.Message) (string, error) {
		return text, nil
	})
}

func newTestManager(s Summarizer) *Manager {
	n := 0
	return New(s,
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
		WithClock(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }),
	)
}

// assertCompactionSafety checks that every tagged message points at exactly
// one existing summary or marker.
func assertCompactionSafety(t *testing.T, msgs []models.Message) {
	t.Helper()
	summaries := map[string]int{}
	markers := map[string]int{}
	for _, m := range msgs {
		if m.IsSummary {
			summaries[m.CondenseID]++
		}
		if m.IsTruncationMarker {
			markers[m.TruncationID]++
		}
	}
	for _, m := range msgs {
		if m.CondenseParent != "" {
			assert.Equal(t, 1, summaries[m.CondenseParent], "condense parent %s", m.CondenseParent)
		}
		if m.TruncationParent != "" {
			assert.Equal(t, 1, markers[m.TruncationParent], "truncation parent %s", m.TruncationParent)
		}
	}
}

// assertRoundPairing checks that every assistant message with tool calls is
// immediately followed by a tool message answering the same ids.
func assertRoundPairing(t *testing.T, msgs []models.Message) {
	t.Helper()
	for i, m := range msgs {
		if m.Role != models.RoleAssistant || len(m.ToolCalls) == 0 {
			continue
		}
		require.Less(t, i+1, len(msgs), "assistant message with calls is last")
		assert.Equal(t, models.RoleTool, msgs[i+1].Role)
		assert.Equal(t, m.CallIDs(), msgs[i+1].ResultIDs())
	}
}

func TestPrune_LongMessage(t *testing.T) {
	msgs := []models.Message{{Role: models.RoleTool, Content: strings.Repeat("x", 1500)}}

	out, res := Prune(msgs)

	content := out[0].Content
	assert.LessOrEqual(t, utf8.RuneCountInString(content), 520)
	assert.True(t, strings.HasSuffix(content, PrunedMarker))
	assert.Greater(t, res.TokensSaved, 0)
	assert.Equal(t, 1, res.PrunedCount)
	assert.Len(t, msgs[0].Content, 1500, "input must not be modified")
}

func TestPrune_LeavesShortMessagesAndMarkers(t *testing.T) {
	long := strings.Repeat("y", 1200)
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "short"},
		{Role: models.RoleUser, Content: strings.Repeat("z", 1000)},
		{Role: models.RoleSystem, Content: long, IsSummary: true, CondenseID: "s"},
	}

	out, res := Prune(msgs)

	assert.Equal(t, 0, res.PrunedCount)
	assert.Equal(t, 0, res.TokensSaved)
	assert.Equal(t, "short", out[0].Content)
	assert.Len(t, out[1].Content, 1000)
	assert.Equal(t, long, out[2].Content)
}

func TestPrune_ToolResults(t *testing.T) {
	msgs := []models.Message{{
		Role: models.RoleTool,
		ToolResults: []models.ToolResult{
			{ToolUseID: "a", Content: strings.Repeat("r", 3000)},
			{ToolUseID: "b", Content: "fine"},
		},
	}}

	out, res := Prune(msgs)

	assert.Equal(t, 1, res.PrunedCount)
	assert.True(t, strings.HasSuffix(out[0].ToolResults[0].Content, PrunedMarker))
	assert.Equal(t, "fine", out[0].ToolResults[1].Content)
	assert.Len(t, msgs[0].ToolResults[0].Content, 3000)
}

func TestUsageRate_Idempotent(t *testing.T) {
	m := newTestManager(nil)
	msgs := conversation(6, 400)
	cfg := testConfig(1000, 4)

	first := m.UsageRate(msgs, cfg)
	second := m.UsageRate(msgs, cfg)

	assert.Equal(t, first, second)
	assert.InDelta(t, 0.6, first, 1e-9)
}

func TestUsageRate_NoAvailableTokens(t *testing.T) {
	m := newTestManager(nil)
	cfg := testConfig(100, 4)
	cfg.ReservedOutputTokens = 200
	assert.Equal(t, 1.0, m.UsageRate(conversation(1, 4), cfg))
}

func TestShouldManage(t *testing.T) {
	m := newTestManager(nil)
	cfg := testConfig(1000, 4)

	assert.False(t, m.ShouldManage(conversation(6, 400), cfg)) // 0.6
	assert.True(t, m.ShouldManage(conversation(7, 400), cfg))  // 0.7
	assert.True(t, m.ShouldManage(conversation(9, 400), cfg))  // 0.9
}

func TestManage_CompactsOlderMessages(t *testing.T) {
	m := newTestManager(fixedSummary("short summary"))
	msgs := conversation(10, 400)
	original := cloneMessages(msgs)
	cfg := testConfig(1000, 4)

	res := m.Manage(context.Background(), msgs, cfg)

	require.NotNil(t, res.Compact)
	assert.Nil(t, res.Prune)
	assert.Nil(t, res.Truncate)
	assert.False(t, res.SummaryFailed)
	assert.Equal(t, "id-1", res.Compact.CondenseID)
	assert.Equal(t, 6, res.Compact.SummarizedCount)
	assert.Greater(t, res.Compact.TokensSaved, 0)
	assert.InDelta(t, 1.0, res.UsageBefore, 1e-9)
	assert.Less(t, res.UsageAfter, 0.5)
	assert.True(t, res.WithinBudget)

	require.Len(t, res.Messages, 11)
	summary := res.Messages[6]
	assert.True(t, summary.IsSummary)
	assert.Equal(t, models.RoleSystem, summary.Role)
	assert.Contains(t, summary.Content, "short summary")
	for i := 0; i < 6; i++ {
		assert.Equal(t, "id-1", res.Messages[i].CondenseParent)
	}
	assertCompactionSafety(t, res.Messages)

	eff := EffectiveHistory(res.Messages, cfg.MessagesToKeep)
	require.Len(t, eff, 5)
	assert.True(t, eff[0].IsSummary)
	assert.Equal(t, msgs[6:], eff[1:])

	assert.Equal(t, original, msgs, "input must not be modified")
}

func TestManage_CompactionKeepsToolRoundsTogether(t *testing.T) {
	m := newTestManager(fixedSummary("summary"))
	msgs := conversation(8, 400)
	msgs[4] = models.Message{
		Role:      models.RoleAssistant,
		Content:   "running",
		ToolCalls: []models.ToolCall{{ID: "c1", Name: "shell", Input: json.RawMessage(`{"command":"ls"}`)}},
	}
	msgs[5] = models.Message{
		Role:        models.RoleTool,
		ToolResults: []models.ToolResult{{ToolUseID: "c1", Name: "shell", Content: strings.Repeat("o", 400)}},
	}
	cfg := testConfig(1000, 3)
	cfg.CompactThreshold = 0.1

	res := m.Manage(context.Background(), msgs, cfg)

	require.NotNil(t, res.Compact)
	assert.Equal(t, 4, res.Compact.SummarizedCount)
	eff := EffectiveHistory(res.Messages, cfg.MessagesToKeep)
	require.Len(t, eff, 5)
	assert.True(t, eff[0].IsSummary)
	assertRoundPairing(t, eff)
	assertCompactionSafety(t, res.Messages)
}

func TestManage_SummaryFailureReturnsOriginal(t *testing.T) {
	failing := SummarizerFunc(func(ctx context.Context, messages []models.Message) (string, error) {
		return "", errors.New("model unavailable")
	})
	m := newTestManager(failing)
	msgs := conversation(10, 400)
	msgs[0].Content = strings.Repeat("p", 2000)

	res := m.Manage(context.Background(), msgs, testConfig(1000, 4))

	assert.True(t, res.SummaryFailed)
	require.Error(t, res.SummaryErr)
	assert.ErrorIs(t, res.SummaryErr, ErrSummaryFailed)
	assert.ErrorContains(t, res.SummaryErr, "model unavailable")
	assert.Nil(t, res.Prune)
	assert.Nil(t, res.Compact)
	assert.Equal(t, msgs, res.Messages)
}

func TestManage_TruncatesWhenSummaryIsNotEnough(t *testing.T) {
	m := newTestManager(fixedSummary(strings.Repeat("s", 2000)))
	msgs := conversation(8, 1000)
	cfg := testConfig(1000, 2)

	res := m.Manage(context.Background(), msgs, cfg)

	require.NotNil(t, res.Compact)
	require.NotNil(t, res.Truncate)
	assert.Equal(t, "id-2", res.Truncate.TruncationID)
	assert.Equal(t, 1, res.Truncate.DroppedCount)
	assert.Equal(t, 7, res.Truncate.RemovedCount, "six condensed originals and their summary")
	assertCompactionSafety(t, res.Messages)
	require.Len(t, res.Messages, 3)
	assert.Less(t, len(res.Messages), len(msgs))

	eff := EffectiveHistory(res.Messages, cfg.MessagesToKeep)
	require.Len(t, eff, 3)
	assert.True(t, eff[0].IsTruncationMarker)
	assert.Contains(t, eff[0].Content, "1 earlier messages were removed")
	assert.Equal(t, msgs[6:], eff[1:])
	assert.Less(t, res.UsageAfter, TruncateThreshold)
}

func TestManage_TruncationBoundsStoredHistory(t *testing.T) {
	m := newTestManager(fixedSummary(strings.Repeat("s", 2000)))
	cfg := testConfig(1000, 2)
	stored := conversation(8, 1000)

	for pass := 0; pass < 3; pass++ {
		res := m.Manage(context.Background(), stored, cfg)
		require.NotNil(t, res.Truncate, "pass %d", pass)
		assert.Len(t, res.Messages, 3, "pass %d", pass)
		assertCompactionSafety(t, res.Messages)
		stored = append(res.Messages, conversation(6, 1000)...)
	}
}

func TestManage_SecondPassIsNoOp(t *testing.T) {
	m := newTestManager(fixedSummary("short summary"))
	cfg := testConfig(1000, 4)

	first := m.Manage(context.Background(), conversation(10, 400), cfg)
	require.NotNil(t, first.Compact)
	require.False(t, m.ShouldManage(first.Messages, cfg))

	second := m.Manage(context.Background(), first.Messages, cfg)
	assert.Nil(t, second.Prune)
	assert.Nil(t, second.Compact)
	assert.Nil(t, second.Truncate)
	assert.Equal(t, first.Messages, second.Messages)
}

func TestManage_PruneAloneCanSuffice(t *testing.T) {
	m := newTestManager(nil)
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "read the log"},
		{Role: models.RoleTool, ToolResults: []models.ToolResult{{ToolUseID: "c", Content: strings.Repeat("l", 3400)}}},
	}

	res := m.Manage(context.Background(), msgs, testConfig(1000, 4))

	require.NotNil(t, res.Prune)
	assert.Nil(t, res.Compact)
	assert.Less(t, res.UsageAfter, 0.2)
	assert.True(t, res.WithinBudget)
}

func TestEffectiveHistory(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "old", CondenseParent: "s1"},
		{Role: models.RoleSystem, Content: "summary", IsSummary: true, CondenseID: "s1"},
		{Role: models.RoleUser, Content: "mid"},
		{Role: models.RoleUser, Content: "tagged but recent", TruncationParent: "t1"},
	}

	eff := EffectiveHistory(msgs, 1)
	require.Len(t, eff, 3)
	assert.Equal(t, "summary", eff[0].Content)
	assert.Equal(t, "mid", eff[1].Content)
	assert.Equal(t, "tagged but recent", eff[2].Content)

	assert.Len(t, EffectiveHistory(msgs, 0), 2)
}
