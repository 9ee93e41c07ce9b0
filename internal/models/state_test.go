package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAgentState_RecentRecords(t *testing.T) {
	s := &AgentState{}
	for i := 1; i <= 5; i++ {
		s.Record(ToolCallRecord{Name: "t", Round: i})
	}

	recent := s.RecentRecords(2)
	assert.Len(t, recent, 2)
	assert.Equal(t, 4, recent[0].Round)
	assert.Equal(t, 5, recent[1].Round)
	assert.Len(t, s.RecentRecords(10), 5)
	assert.Nil(t, s.RecentRecords(0))
}

func TestAgentState_RecordsBefore(t *testing.T) {
	s := &AgentState{}
	s.Record(ToolCallRecord{Round: 1})
	s.Record(ToolCallRecord{Round: 2})
	s.Record(ToolCallRecord{Round: 3})
	s.Record(ToolCallRecord{Round: 3})

	before := s.RecordsBefore(3, 10)
	assert.Len(t, before, 2)
	assert.Equal(t, 2, before[1].Round)

	assert.Len(t, s.RecordsBefore(1, 10), 0)
	assert.Len(t, s.RecordsBefore(3, 1), 1)
}
