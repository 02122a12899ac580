package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/feedlens/feedlens/pkg/domain"
)

// RunRepository archives finished collection runs
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// runSQL represents a collection run for SQL operations
type runSQL struct {
	RunID         string       `db:"run_id"`
	Status        string       `db:"status"`
	StartedAt     time.Time    `db:"started_at"`
	FinishedAt    sql.NullTime `db:"finished_at"`
	TotalItems    int          `db:"total_items"`
	NewItems      int          `db:"new_items"`
	UpdatedItems  int          `db:"updated_items"`
	SimilarPairs  int          `db:"similar_pairs"`
	TablesVersion string       `db:"tables_version"`
	Sources       string       `db:"sources"`
	Errors        string       `db:"errors"`
}

// SaveRun inserts or replaces a run in the archive
func (r *RunRepository) SaveRun(ctx context.Context, run *domain.CollectionRun) error {
	sources, err := json.Marshal(run.Sources)
	if err != nil {
		return fmt.Errorf("marshal run sources: %w", err)
	}
	failures, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("marshal run errors: %w", err)
	}

	finished := sql.NullTime{Time: run.FinishedAt, Valid: !run.FinishedAt.IsZero()}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, status, started_at, finished_at, total_items,
			new_items, updated_items, similar_pairs, tables_version, sources, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at,
			total_items = excluded.total_items,
			new_items = excluded.new_items,
			updated_items = excluded.updated_items,
			similar_pairs = excluded.similar_pairs,
			tables_version = excluded.tables_version,
			sources = excluded.sources,
			errors = excluded.errors`,
		run.RunID, string(run.Status), run.StartedAt.UTC(), finished,
		run.TotalItems, run.NewItems, run.UpdatedItems, run.SimilarPairs,
		run.TablesVer, string(sources), string(failures))
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by id
func (r *RunRepository) GetRun(ctx context.Context, runID string) (*domain.CollectionRun, error) {
	var row runSQL
	err := r.db.GetContext(ctx, &row, "SELECT * FROM runs WHERE run_id = ?", runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return toDomainRun(&row)
}

// ListRuns retrieves archived runs, most recent first
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]domain.CollectionRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runSQL
	err := r.db.SelectContext(ctx, &rows,
		"SELECT * FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	result := make([]domain.CollectionRun, 0, len(rows))
	for i := range rows {
		run, err := toDomainRun(&rows[i])
		if err != nil {
			return nil, err
		}
		result = append(result, *run)
	}
	return result, nil
}

func toDomainRun(row *runSQL) (*domain.CollectionRun, error) {
	run := &domain.CollectionRun{
		RunID:        row.RunID,
		Status:       domain.RunStatus(row.Status),
		StartedAt:    row.StartedAt.UTC(),
		TotalItems:   row.TotalItems,
		NewItems:     row.NewItems,
		UpdatedItems: row.UpdatedItems,
		SimilarPairs: row.SimilarPairs,
		TablesVer:    row.TablesVersion,
	}
	if row.FinishedAt.Valid {
		run.FinishedAt = row.FinishedAt.Time.UTC()
	}
	if err := json.Unmarshal([]byte(row.Sources), &run.Sources); err != nil {
		return nil, fmt.Errorf("unmarshal run sources: %w", err)
	}
	if err := json.Unmarshal([]byte(row.Errors), &run.Errors); err != nil {
		return nil, fmt.Errorf("unmarshal run errors: %w", err)
	}
	return run, nil
}
