package history

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kilometers.ai/appdeploy/internal/application/ports"
	"kilometers.ai/appdeploy/internal/core/pipeline"
)

// InMemoryStore keeps reports for the lifetime of the process. It is used
// when the history database cannot be opened.
type InMemoryStore struct {
	reports map[string]*pipeline.Report
	mu      sync.RWMutex
}

var _ ports.ReportRepository = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{reports: make(map[string]*pipeline.Report)}
}

func (r *InMemoryStore) Save(ctx context.Context, report *pipeline.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reports[report.RunID] = cloneReport(report)
	return nil
}

func (r *InMemoryStore) FindByID(ctx context.Context, runID string) (*pipeline.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if report, exists := r.reports[runID]; exists {
		return cloneReport(report), nil
	}
	return nil, fmt.Errorf("%w: %s", ports.ErrReportNotFound, runID)
}

func (r *InMemoryStore) FindRecent(ctx context.Context, limit int) ([]*pipeline.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reports := make([]*pipeline.Report, 0, len(r.reports))
	for _, report := range r.reports {
		reports = append(reports, cloneReport(report))
	}

	sort.Slice(reports, func(i, j int) bool {
		if reports[i].StartedAt.Equal(reports[j].StartedAt) {
			return reports[i].RunID > reports[j].RunID
		}
		return reports[i].StartedAt.After(reports[j].StartedAt)
	})

	if limit < 0 {
		limit = 0
	}
	if len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

func (r *InMemoryStore) Close() error {
	return nil
}

func cloneReport(report *pipeline.Report) *pipeline.Report {
	clone := *report
	clone.Results = append([]pipeline.StepResult(nil), report.Results...)
	for i, result := range clone.Results {
		if result.ExitCode != nil {
			code := *result.ExitCode
			clone.Results[i].ExitCode = &code
		}
	}
	return &clone
}
