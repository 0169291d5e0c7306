package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"infra-chatops/internal/workflow"
)

// Schema creates the audit tables. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS workflow_executions (
	instance_id   TEXT PRIMARY KEY,
	workflow      TEXT NOT NULL,
	intent        TEXT NOT NULL,
	status        TEXT NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	failed_step   TEXT NOT NULL DEFAULT '',
	error_kind    TEXT NOT NULL DEFAULT '',
	final_message TEXT NOT NULL DEFAULT '',
	parameters    JSONB NOT NULL DEFAULT '{}',
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS workflow_executions_workflow_idx ON workflow_executions (workflow, started_at DESC);
CREATE TABLE IF NOT EXISTS workflow_step_results (
	instance_id   TEXT NOT NULL REFERENCES workflow_executions (instance_id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	step          TEXT NOT NULL,
	step_type     TEXT NOT NULL,
	status        TEXT NOT NULL,
	error_kind    TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	output        JSONB,
	started_at    TIMESTAMPTZ NOT NULL,
	duration_ms   BIGINT NOT NULL,
	PRIMARY KEY (instance_id, position)
);`

const (
	upsertExecutionSQL = `INSERT INTO workflow_executions (instance_id, workflow, intent, status, reason, failed_step, error_kind, final_message, parameters, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (instance_id) DO UPDATE SET status = EXCLUDED.status, reason = EXCLUDED.reason, failed_step = EXCLUDED.failed_step,
error_kind = EXCLUDED.error_kind, final_message = EXCLUDED.final_message, finished_at = EXCLUDED.finished_at`

	deleteStepsSQL = `DELETE FROM workflow_step_results WHERE instance_id = $1`

	insertStepSQL = `INSERT INTO workflow_step_results (instance_id, position, step, step_type, status, error_kind, error_message, output, started_at, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	historySQL = `SELECT instance_id, workflow, intent, status, failed_step, error_kind, started_at, finished_at
FROM workflow_executions WHERE ($1 = '' OR workflow = $1) ORDER BY started_at DESC LIMIT $2`
)

// ExecutionRecord is one row of workflow_executions.
type ExecutionRecord struct {
	InstanceID string     `json:"instance_id"`
	Workflow   string     `json:"workflow"`
	Intent     string     `json:"intent"`
	Status     string     `json:"status"`
	FailedStep string     `json:"failed_step,omitempty"`
	ErrorKind  string     `json:"error_kind,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// AuditRepository writes every terminal report and its ledger to Postgres.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (a *AuditRepository) Migrate(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

// Archive replaces the stored execution and step rows for the report's instance.
func (a *AuditRepository) Archive(ctx context.Context, r *workflow.Report) (err error) {
	params, err := json.Marshal(r.Parameters)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var finished interface{}
	if !r.FinishedAt.IsZero() {
		finished = r.FinishedAt
	}
	if _, err = tx.ExecContext(ctx, upsertExecutionSQL,
		r.InstanceID, r.Workflow, r.Intent, string(r.Status), r.Reason, r.FailedStep,
		string(r.ErrorKind), r.FinalMessage, params, r.StartedAt, finished,
	); err != nil {
		return fmt.Errorf("upsert execution %s: %w", r.InstanceID, err)
	}

	if _, err = tx.ExecContext(ctx, deleteStepsSQL, r.InstanceID); err != nil {
		return fmt.Errorf("clear steps %s: %w", r.InstanceID, err)
	}

	for _, e := range r.Ledger {
		var output []byte
		if e.Output != nil {
			if output, err = json.Marshal(e.Output); err != nil {
				return fmt.Errorf("encode output of step %d: %w", e.Index, err)
			}
		}
		kind, msg := "", ""
		if e.Error != nil {
			kind, msg = string(e.Error.Kind), e.Error.Message
		}
		if _, err = tx.ExecContext(ctx, insertStepSQL,
			r.InstanceID, e.Index, e.Step, string(e.Type), string(e.Status), kind, msg,
			output, e.StartedAt, e.Duration.Milliseconds(),
		); err != nil {
			return fmt.Errorf("insert step %d: %w", e.Index, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit audit tx: %w", err)
	}
	return nil
}

// History lists the most recent executions of a workflow, or of every
// workflow when workflowName is empty.
func (a *AuditRepository) History(ctx context.Context, workflowName string, limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.QueryContext(ctx, historySQL, workflowName, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []ExecutionRecord
	for rows.Next() {
		var rec ExecutionRecord
		var finished sql.NullTime
		if err := rows.Scan(&rec.InstanceID, &rec.Workflow, &rec.Intent, &rec.Status,
			&rec.FailedStep, &rec.ErrorKind, &rec.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			rec.FinishedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
