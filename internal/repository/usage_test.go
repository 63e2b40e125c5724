package repository

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryUsageRepository_Record(t *testing.T) {
	repo := NewInMemoryUsageRepository()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := repo.Record(ctx, UsageRecord{
			RequestID: "req",
			Provider:  "openai",
			Model:     "gpt-4o",
			Status:    "success",
			CreatedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	recent := repo.Recent(10)
	if len(recent) != 3 {
		t.Errorf("len = %d, want 3", len(recent))
	}
}

func TestInMemoryUsageRepository_Bounded(t *testing.T) {
	repo := NewInMemoryUsageRepository()
	repo.maxSize = 5
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		repo.Record(ctx, UsageRecord{RequestID: "req", LatencyMs: int64(i)})
	}

	recent := repo.Recent(100)
	if len(recent) != 5 {
		t.Fatalf("len = %d, want 5", len(recent))
	}
	if recent[0].LatencyMs != 11 {
		t.Errorf("newest record LatencyMs = %d, want 11", recent[0].LatencyMs)
	}
}
