package labreport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type reportRepoMemory struct {
	mu      sync.RWMutex
	reports []*Report
	byID    map[uuid.UUID]*Report
}

// NewReportRepoMemory returns a process-local repository, used when no
// database is configured.
func NewReportRepoMemory() ReportRepository {
	return &reportRepoMemory{byID: make(map[uuid.UUID]*Report)}
}

func (m *reportRepoMemory) Create(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	stored := *r
	m.reports = append(m.reports, &stored)
	m.byID[r.ID] = &stored
	return nil
}

func (m *reportRepoMemory) GetByID(_ context.Context, id uuid.UUID) (*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r
	return &out, nil
}

// List returns newest entries first.
func (m *reportRepoMemory) List(_ context.Context, limit, offset int) ([]*Report, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := len(m.reports)
	var items []*Report
	for i := total - 1 - offset; i >= 0 && len(items) < limit; i-- {
		out := *m.reports[i]
		items = append(items, &out)
	}
	return items, total, nil
}

func (m *reportRepoMemory) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := &Stats{TotalReports: len(m.reports)}
	for _, r := range m.reports {
		if r.Status == StatusProcessed {
			s.ProcessedReports++
		}
		s.ParametersAnalyzed += r.ParameterCount
	}
	return s, nil
}
