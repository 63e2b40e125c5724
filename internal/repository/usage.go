// Package repository records one usage row per generation request. Records
// carry routing metadata only; message content and credentials are never
// stored.
package repository

import (
	"context"
	"sync"
	"time"
)

type UsageRecord struct {
	RequestID string
	UserID    string
	TeamID    string
	Provider  string
	Model     string
	Template  string
	Status    string
	LatencyMs int64
	CreatedAt time.Time
}

type UsageRepository interface {
	Record(ctx context.Context, record UsageRecord) error
}

// InMemoryUsageRepository keeps a bounded record window. The default backend
// when no database is configured.
type InMemoryUsageRepository struct {
	mu      sync.Mutex
	records []UsageRecord
	maxSize int
}

func NewInMemoryUsageRepository() *InMemoryUsageRepository {
	return &InMemoryUsageRepository{maxSize: 10000}
}

func (r *InMemoryUsageRepository) Record(ctx context.Context, record UsageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, record)
	if len(r.records) > r.maxSize {
		r.records = r.records[len(r.records)-r.maxSize:]
	}
	return nil
}

// Recent returns up to n of the newest records, newest first.
func (r *InMemoryUsageRepository) Recent(n int) []UsageRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > len(r.records) {
		n = len(r.records)
	}
	out := make([]UsageRecord, n)
	for i := 0; i < n; i++ {
		out[i] = r.records[len(r.records)-1-i]
	}
	return out
}
