package storage

import (
	"context"

	"popos/internal/model"
)

// Store defines persistence operations for run records, fitness histories,
// and the best-descriptor plans captured during evolution.
type Store interface {
	Init(ctx context.Context) error
	SaveRunRecord(ctx context.Context, record model.RunRecord) error
	GetRunRecord(ctx context.Context, runID string) (model.RunRecord, bool, error)
	ListRunIDs(ctx context.Context) ([]string, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SavePlan(ctx context.Context, plan model.PlanRecord) error
	GetPlan(ctx context.Context, runID string, generation int) (model.PlanRecord, bool, error)
	GetLatestPlan(ctx context.Context, runID string) (model.PlanRecord, bool, error)
}
