package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StartNLPRun opens a ledger row for one phase of a daily batch.
func (p *Pool) StartNLPRun(ctx context.Context, day time.Time, phase string) (*NLPRun, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}

	run := NLPRun{
		RunUUID: uuid.NewString(),
		RunDate: day,
		Phase:   phase,
		Status:  "running",
	}
	if err := p.gdb.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, fmt.Errorf("start nlp run %s/%s: %w", day.Format("2006-01-02"), phase, err)
	}
	return &run, nil
}

// FinishNLPRun closes a ledger row with its final counters.
func (p *Pool) FinishNLPRun(ctx context.Context, run *NLPRun, runErr error) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	if run == nil {
		return fmt.Errorf("nlp run is nil")
	}

	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Status = "succeeded"
	if runErr != nil {
		run.Status = "failed"
		message := runErr.Error()
		run.ErrorMessage = &message
	}

	if err := p.gdb.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("finish nlp run #%d: %w", run.RunID, err)
	}
	return nil
}

// RecentNLPRuns lists ledger rows for a day, newest first.
func (p *Pool) RecentNLPRuns(ctx context.Context, day time.Time, limit int) ([]NLPRun, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	var runs []NLPRun
	err := p.gdb.WithContext(ctx).
		Where("run_date = ?", day.Format("2006-01-02")).
		Order("run_id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list nlp runs for %s: %w", day.Format("2006-01-02"), err)
	}
	return runs, nil
}
