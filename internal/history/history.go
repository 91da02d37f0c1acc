// Package history keeps a short, bounded log of past analyses per client key.
package history

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/HanTheDev/relationship-coach-api/internal/models"
)

const (
	DefaultCapacity = 10

	shardCount = 32
)

type shard struct {
	mu   sync.RWMutex
	logs map[string][]models.HistoryEntry
}

// Store is safe for concurrent use. Append is the only mutator.
type Store struct {
	capacity int
	shards   [shardCount]shard
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{capacity: capacity}
	for i := range s.shards {
		s.shards[i].logs = make(map[string][]models.HistoryEntry)
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	return &s.shards[xxhash.Sum64String(key)%shardCount]
}

// Append records entry for key and evicts the oldest entries beyond capacity.
// Entries stay ordered by Timestamp: a request that arrived earlier but
// finished later is slotted in before newer entries.
func (s *Store) Append(key string, entry models.HistoryEntry) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	log := sh.logs[key]
	i := len(log)
	for i > 0 && log[i-1].Timestamp.After(entry.Timestamp) {
		i--
	}
	log = append(log, models.HistoryEntry{})
	copy(log[i+1:], log[i:])
	log[i] = entry

	if over := len(log) - s.capacity; over > 0 {
		// Copy into a fresh slice so the evicted prefix can be collected.
		trimmed := make([]models.HistoryEntry, s.capacity)
		copy(trimmed, log[over:])
		log = trimmed
	}
	sh.logs[key] = log
}

// Recent returns up to n of the latest entries for key, most recent last.
func (s *Store) Recent(key string, n int) []models.HistoryEntry {
	if n <= 0 {
		return nil
	}
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	log := sh.logs[key]
	if n > len(log) {
		n = len(log)
	}
	out := make([]models.HistoryEntry, n)
	copy(out, log[len(log)-n:])
	return out
}

func (s *Store) Capacity() int { return s.capacity }
