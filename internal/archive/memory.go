package archive

import (
	"context"
	"sync"
)

// MemoryRecorder keeps results in process memory, for tests and for
// deployments that skip the database.
type MemoryRecorder struct {
	mu      sync.Mutex
	results []Result
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) SaveResult(_ context.Context, res Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	return nil
}

// Results returns a copy of everything recorded so far.
func (m *MemoryRecorder) Results() []Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Result(nil), m.results...)
}
