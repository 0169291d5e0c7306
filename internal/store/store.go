// Package store persists workflow reports: the report store the service reads
// back from, plus archivers (audit trail, search index) that receive every
// terminal report.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"infra-chatops/internal/workflow"
)

var ErrNotFound = errors.New("report not found")

// ReportStore keeps the latest report per instance.
type ReportStore interface {
	Save(ctx context.Context, r *workflow.Report) error
	Get(ctx context.Context, instanceID string) (*workflow.Report, error)
	Recent(ctx context.Context, limit int) ([]string, error)
}

// Archiver receives terminal reports for long-term storage.
type Archiver interface {
	Archive(ctx context.Context, r *workflow.Report) error
}

type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string]*workflow.Report
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reports: make(map[string]*workflow.Report)}
}

func (s *MemoryStore) Save(_ context.Context, r *workflow.Report) error {
	cp := *r
	s.mu.Lock()
	s.reports[r.InstanceID] = &cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*workflow.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// Recent returns instance ids, newest first.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	all := make([]*workflow.Report, 0, len(s.reports))
	for _, r := range s.reports {
		all = append(all, r)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].InstanceID < all[j].InstanceID
		}
		return all[i].StartedAt.After(all[j].StartedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	ids := make([]string, len(all))
	for i, r := range all {
		ids[i] = r.InstanceID
	}
	return ids, nil
}
