package store

import (
	"sync"
	"time"

	"github.com/i474232898/hightemps/internal/weather"
)

// ErrNotFound is returned when no run matches the lookup.
var ErrNotFound = weather.ErrRunNotFound

// MemoryStore is a concurrency-safe in-memory store of fetch runs. Runs live
// only for the lifetime of the process.
type MemoryStore struct {
	mu sync.RWMutex

	// runs in the order they were first saved
	runs  []weather.Run
	index map[string]int

	// retention configuration
	maxRuns int           // max number of runs kept (0 = unlimited)
	maxAge  time.Duration // max age of finished runs (0 = unlimited)

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxRuns is <= 0, it is treated as unlimited.
func NewMemoryStore(maxRuns int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		index:   make(map[string]int),
		maxRuns: maxRuns,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// SaveRun inserts or replaces a run by ID and enforces retention.
func (s *MemoryStore) SaveRun(run weather.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[run.ID]; ok {
		s.runs[i] = run
		return
	}

	s.runs = append(s.runs, run)
	s.index[run.ID] = len(s.runs) - 1
	s.enforceRetention()
}

// enforceRetention drops the oldest runs past the count limit and finished
// runs past the age limit. Running runs are never dropped. Callers hold mu.
func (s *MemoryStore) enforceRetention() {
	cutoff := time.Time{}
	if s.maxAge > 0 {
		cutoff = s.now().Add(-s.maxAge)
	}

	excess := 0
	if s.maxRuns > 0 && len(s.runs) > s.maxRuns {
		excess = len(s.runs) - s.maxRuns
	}

	kept := s.runs[:0]
	for _, r := range s.runs {
		finished := r.Status != weather.RunRunning
		switch {
		case excess > 0 && finished:
			excess--
			continue
		case !cutoff.IsZero() && finished && r.FinishedAt != nil && r.FinishedAt.Before(cutoff):
			continue
		}
		kept = append(kept, r)
	}
	s.runs = kept

	s.index = make(map[string]int, len(s.runs))
	for i, r := range s.runs {
		s.index[r.ID] = i
	}
}

// GetRun returns the run with the given ID.
func (s *MemoryStore) GetRun(id string) (weather.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return weather.Run{}, ErrNotFound
	}
	return s.runs[i].Snapshot(), nil
}

// Latest returns the most recently started run.
func (s *MemoryStore) Latest() (weather.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.runs) == 0 {
		return weather.Run{}, ErrNotFound
	}
	return s.runs[len(s.runs)-1].Snapshot(), nil
}
