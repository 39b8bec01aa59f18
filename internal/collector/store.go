package collector

import (
	"sync"

	"github.com/inetanalyzer/agent/pkg/types"
)

// ReportStore keeps the most recent uploads in memory, dropping the oldest
// once capacity is reached.
type ReportStore struct {
	mu       sync.Mutex
	capacity int
	items    []types.UploadEnvelope
	received uint64
	dropped  uint64
}

type Stats struct {
	Len      int    `json:"len"`
	Received uint64 `json:"received"`
	Dropped  uint64 `json:"dropped"`
}

func NewReportStore(capacity int) *ReportStore {
	if capacity <= 0 {
		capacity = 1
	}
	return &ReportStore{
		capacity: capacity,
		items:    make([]types.UploadEnvelope, 0, capacity),
	}
}

// Add stores env and reports whether an older upload was evicted.
func (s *ReportStore) Add(env types.UploadEnvelope) (dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) >= s.capacity {
		s.items = s.items[1:]
		s.dropped++
		dropped = true
	}
	s.items = append(s.items, env)
	s.received++
	return dropped
}

// List returns up to limit uploads, newest first. A limit of zero or less returns all.
func (s *ReportStore) List(limit int) []types.UploadEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]types.UploadEnvelope, 0, n)
	for i := len(s.items) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.items[i])
	}
	return out
}

func (s *ReportStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *ReportStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Len:      len(s.items),
		Received: s.received,
		Dropped:  s.dropped,
	}
}
