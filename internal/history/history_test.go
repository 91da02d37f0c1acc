package history

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HanTheDev/relationship-coach-api/internal/models"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func entry(i int) models.HistoryEntry {
	return models.HistoryEntry{
		Mode:        models.ModeMessage,
		InputDigest: fmt.Sprintf("input %d", i),
		SummaryLine: fmt.Sprintf("summary %d", i),
		Timestamp:   base.Add(time.Duration(i) * time.Second),
	}
}

func TestAppend_EvictsOldestBeyondCapacity(t *testing.T) {
	s := NewStore(10)
	for i := 1; i <= 11; i++ {
		s.Append("k", entry(i))
	}

	got := s.Recent("k", 100)
	require.Len(t, got, 10)
	for i, e := range got {
		assert.Equal(t, fmt.Sprintf("input %d", i+2), e.InputDigest)
	}
}

func TestRecent_ReturnsTailMostRecentLast(t *testing.T) {
	s := NewStore(10)
	for i := 1; i <= 5; i++ {
		s.Append("k", entry(i))
	}

	got := s.Recent("k", 3)
	require.Len(t, got, 3)
	assert.Equal(t, "summary 3", got[0].SummaryLine)
	assert.Equal(t, "summary 5", got[2].SummaryLine)
}

func TestRecent_EmptyForUnknownKey(t *testing.T) {
	s := NewStore(10)
	assert.Empty(t, s.Recent("nobody", 3))
	assert.Nil(t, s.Recent("nobody", 0))
}

func TestRecent_ReadAfterWrite(t *testing.T) {
	s := NewStore(10)
	s.Append("k", entry(1))
	got := s.Recent("k", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "summary 1", got[0].SummaryLine)
}

func TestRecent_ReturnsCopy(t *testing.T) {
	s := NewStore(10)
	s.Append("k", entry(1))
	got := s.Recent("k", 1)
	got[0].SummaryLine = "mutated"
	assert.Equal(t, "summary 1", s.Recent("k", 1)[0].SummaryLine)
}

func TestAppend_KeepsArrivalOrder(t *testing.T) {
	s := NewStore(10)
	s.Append("k", entry(1))
	s.Append("k", entry(3))
	s.Append("k", entry(2))

	got := s.Recent("k", 3)
	require.Len(t, got, 3)
	assert.Equal(t, "input 1", got[0].InputDigest)
	assert.Equal(t, "input 2", got[1].InputDigest)
	assert.Equal(t, "input 3", got[2].InputDigest)
}

func TestAppend_ConcurrentKeys(t *testing.T) {
	s := NewStore(10)
	var wg sync.WaitGroup
	for k := 0; k < 8; k++ {
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(k, i int) {
				defer wg.Done()
				s.Append(fmt.Sprintf("key-%d", k), entry(i))
			}(k, i)
		}
	}
	wg.Wait()

	for k := 0; k < 8; k++ {
		got := s.Recent(fmt.Sprintf("key-%d", k), 100)
		require.Len(t, got, 10)
		for i := 1; i < len(got); i++ {
			assert.False(t, got[i].Timestamp.Before(got[i-1].Timestamp))
		}
	}
}
