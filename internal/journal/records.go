package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/jobtrail/internal/merge"
	"github.com/roach88/jobtrail/internal/model"
)

// Stage names used in row_outcomes.
const (
	StageEnrich  = "enrich"
	StagePublish = "publish"
)

// Run is one pipeline invocation.
type Run struct {
	ID           string      `json:"id" yaml:"id"`
	StartedUTC   string      `json:"started_utc" yaml:"started_utc"`
	FinishedUTC  string      `json:"finished_utc,omitempty" yaml:"finished_utc,omitempty"`
	Master       string      `json:"master" yaml:"master"`
	LocalPath    string      `json:"local_path" yaml:"local_path"`
	ForceRefresh bool        `json:"force_refresh" yaml:"force_refresh"`
	DryRun       bool        `json:"dry_run" yaml:"dry_run"`
	Stats        merge.Stats `json:"stats" yaml:"stats"`
	Decision     string      `json:"decision,omitempty" yaml:"decision,omitempty"`
	Enriched     model.Tally `json:"enriched" yaml:"enriched"`
	Published    model.Tally `json:"published" yaml:"published"`
	Error        string      `json:"error,omitempty" yaml:"error,omitempty"`
}

// OutcomeRecord is a stored row outcome.
type OutcomeRecord struct {
	RunID       string `json:"run_id"`
	Stage       string `json:"stage"`
	IdentityKey string `json:"identity_key"`
	RowIndex    int    `json:"row_index"`
	Status      string `json:"status"`
	RecordID    string `json:"record_id,omitempty"`
	Created     bool   `json:"created,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
	ErrorMsg    string `json:"error_msg,omitempty"`
}

var runColumns = []string{
	"id", "started_utc", "finished_utc", "master", "local_path",
	"force_refresh", "dry_run", "added", "kept", "pending", "decision",
	"enriched_done", "enriched_errors", "published_done", "published_errors",
	"error",
}

// BeginRun records the start of a run. Recording the same run id twice is
// a no-op.
func (j *Journal) BeginRun(ctx context.Context, r Run) error {
	if r.ID == "" {
		return fmt.Errorf("begin run: empty run id")
	}
	_, err := sq.Insert("runs").
		Columns("id", "started_utc", "master", "local_path", "force_refresh", "dry_run").
		Values(r.ID, r.StartedUTC, r.Master, r.LocalPath, r.ForceRefresh, r.DryRun).
		Suffix("ON CONFLICT(id) DO NOTHING").
		RunWith(j.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", r.ID, err)
	}
	return nil
}

// FinishRun stores the final counters, decision and error of a run.
func (j *Journal) FinishRun(ctx context.Context, r Run) error {
	res, err := sq.Update("runs").
		SetMap(map[string]any{
			"finished_utc":     r.FinishedUTC,
			"added":            r.Stats.Added,
			"kept":             r.Stats.Kept,
			"pending":          r.Stats.Pending,
			"decision":         r.Decision,
			"enriched_done":    r.Enriched.Done,
			"enriched_errors":  r.Enriched.Errors,
			"published_done":   r.Published.Done,
			"published_errors": r.Published.Errors,
			"error":            r.Error,
		}).
		Where(sq.Eq{"id": r.ID}).
		RunWith(j.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run %s: %w", r.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: run not found", r.ID)
	}
	return nil
}

// WriteOutcomes records a stage's row outcomes in one transaction.
func (j *Journal) WriteOutcomes(ctx context.Context, runID, stage string, outcomes []model.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, o := range outcomes {
		var kind, msg string
		if o.Err != nil {
			kind, msg = string(o.Err.Kind), o.Err.Message
		}
		_, err := sq.Insert("row_outcomes").
			Columns("run_id", "stage", "identity_key", "row_index", "status",
				"record_id", "created", "error_kind", "error_msg").
			Values(runID, stage, o.Key, o.Index, string(o.Status),
				o.RecordID, o.Created, kind, msg).
			Suffix("ON CONFLICT(run_id, stage, identity_key) DO NOTHING").
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("write outcome %s/%s: %w", stage, o.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outcomes: %w", err)
	}
	return nil
}

// GetRun returns a run by id.
func (j *Journal) GetRun(ctx context.Context, id string) (Run, error) {
	row := sq.Select(runColumns...).
		From("runs").
		Where(sq.Eq{"id": id}).
		RunWith(j.db).
		QueryRowContext(ctx)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	q := sq.Select(runColumns...).
		From("runs").
		OrderBy("started_utc DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	rows, err := q.RunWith(j.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Outcomes returns a run's recorded outcomes ordered by stage and row index.
func (j *Journal) Outcomes(ctx context.Context, runID string) ([]OutcomeRecord, error) {
	rows, err := sq.Select("run_id", "stage", "identity_key", "row_index", "status",
		"record_id", "created", "error_kind", "error_msg").
		From("row_outcomes").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("stage ASC", "row_index ASC").
		RunWith(j.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var o OutcomeRecord
		if err := rows.Scan(&o.RunID, &o.Stage, &o.IdentityKey, &o.RowIndex, &o.Status,
			&o.RecordID, &o.Created, &o.ErrorKind, &o.ErrorMsg); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return out, nil
}

func scanRun(s sq.RowScanner) (Run, error) {
	var r Run
	err := s.Scan(&r.ID, &r.StartedUTC, &r.FinishedUTC, &r.Master, &r.LocalPath,
		&r.ForceRefresh, &r.DryRun, &r.Stats.Added, &r.Stats.Kept, &r.Stats.Pending,
		&r.Decision, &r.Enriched.Done, &r.Enriched.Errors, &r.Published.Done,
		&r.Published.Errors, &r.Error)
	return r, err
}
