package history

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mfateev/temporal-agent-loop/internal/models"
)

func sampleConversation() []models.Message {
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	return []models.Message{
		{Role: models.RoleUser, Content: "old request", SequenceTime: ts, CondenseParent: "s1"},
		{Role: models.RoleSystem, Content: "summary", SequenceTime: ts, IsSummary: true, CondenseID: "s1"},
		{
			Role:         models.RoleAssistant,
			SequenceTime: ts,
			ToolCalls:    []models.ToolCall{{ID: "c1", Name: "list_dir", Input: json.RawMessage(`{"path":"/tmp"}`)}},
		},
		{
			Role:         models.RoleTool,
			SequenceTime: ts,
			ToolResults: []models.ToolResult{{
				ToolUseID: "c1", Name: "list_dir", Content: "a.txt", Duration: time.Second,
				StartedAt: ts, FinishedAt: ts.Add(time.Second),
			}},
		},
	}
}

// StoreSuite runs the same contract against every implementation.
type StoreSuite struct {
	suite.Suite
	open  func(t *testing.T) Store
	store Store
}

func (s *StoreSuite) SetupTest() {
	s.store = s.open(s.T())
}

func (s *StoreSuite) TearDownTest() {
	s.NoError(s.store.Close())
}

func (s *StoreSuite) TestLoadUnknown() {
	_, err := s.store.Load(context.Background(), "missing")
	s.ErrorIs(err, ErrNotFound)

	msgs, err := LoadOrEmpty(context.Background(), s.store, "missing")
	s.NoError(err)
	s.Nil(msgs)
}

func (s *StoreSuite) TestRoundTrip() {
	ctx := context.Background()
	want := sampleConversation()
	s.Require().NoError(s.store.Save(ctx, "sess-1", want))

	got, err := s.store.Load(ctx, "sess-1")
	s.Require().NoError(err)
	s.Require().Len(got, len(want))
	for i := range want {
		s.Equal(want[i].Role, got[i].Role)
		s.Equal(want[i].Content, got[i].Content)
		s.True(want[i].SequenceTime.Equal(got[i].SequenceTime))
		s.Equal(want[i].CondenseParent, got[i].CondenseParent)
		s.Equal(want[i].IsSummary, got[i].IsSummary)
		s.Equal(want[i].CallIDs(), got[i].CallIDs())
		s.Equal(want[i].ResultIDs(), got[i].ResultIDs())
	}
	s.JSONEq(`{"path":"/tmp"}`, string(got[2].ToolCalls[0].Input))
	s.Equal(time.Second, got[3].ToolResults[0].Duration)
}

func (s *StoreSuite) TestSaveReplaces() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, "sess", sampleConversation()))
	s.Require().NoError(s.store.Save(ctx, "sess", sampleConversation()[:1]))

	got, err := s.store.Load(ctx, "sess")
	s.Require().NoError(err)
	s.Len(got, 1)
}

func (s *StoreSuite) TestList() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, "b", sampleConversation()))
	s.Require().NoError(s.store.Save(ctx, "a", sampleConversation()[:2]))

	infos, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Require().Len(infos, 2)
	s.Equal("a", infos[0].ID)
	s.Equal(2, infos[0].Messages)
	s.Equal("b", infos[1].ID)
	s.Equal(4, infos[1].Messages)
	s.False(infos[1].UpdatedAt.IsZero())
}

func (s *StoreSuite) TestRejectsPathLikeIDs() {
	s.Error(s.store.Save(context.Background(), "../escape", nil))
	s.Error(s.store.Save(context.Background(), "", nil))
}

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &StoreSuite{open: func(*testing.T) Store { return NewMemory() }})
}

func TestFileStore(t *testing.T) {
	suite.Run(t, &StoreSuite{open: func(t *testing.T) Store {
		s, err := NewFileStore(filepath.Join(t.TempDir(), "sessions"))
		require.NoError(t, err)
		return s
	}})
}

func TestSQLiteStore(t *testing.T) {
	suite.Run(t, &StoreSuite{open: func(t *testing.T) Store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "sessions.db"))
		require.NoError(t, err)
		return s
	}})
}

func TestFileStore_WritesCompressedData(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	defer s.Close()

	big := []models.Message{{Role: models.RoleTool, Content: string(make([]byte, 64*1024))}}
	require.NoError(t, s.Save(context.Background(), "big", big))

	info, err := os.Stat(filepath.Join(dir, "big"+fileSuffix))
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(8*1024))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestOpen(t *testing.T) {
	s, err := Open("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open("redis", "")
	assert.ErrorContains(t, err, "unknown session store")
}
