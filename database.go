package main

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

type DatabaseInterface interface {
	CreateOutcomeLog(ctx context.Context, params CreateOutcomeLogParams) error
	Close() error
}

type Database struct {
	db      *sql.DB
	queries *Queries
}

func NewDatabase(databaseURL string) (*Database, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{
		db:      db,
		queries: New(db),
	}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) EnsureSchema(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, schema)
	return err
}

func (d *Database) CreateOutcomeLog(ctx context.Context, params CreateOutcomeLogParams) error {
	return d.queries.CreateOutcomeLog(ctx, params)
}

const schema = `
CREATE TABLE IF NOT EXISTS page_ledger (
    message_id   TEXT PRIMARY KEY,
    artifact_key TEXT NOT NULL,
    recorded_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS page_ledger_recorded_at_idx ON page_ledger (recorded_at);

CREATE TABLE IF NOT EXISTS processing_outcomes (
    id            BIGSERIAL PRIMARY KEY,
    message_id    TEXT NOT NULL,
    success       BOOLEAN NOT NULL,
    failure_stage TEXT NOT NULL,
    error         TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL
);
`

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type CreateOutcomeLogParams struct {
	MessageID    string
	Success      bool
	FailureStage string
	Error        string
	CreatedAt    time.Time
}

func outcomeLogParams(o ProcessingOutcome, at time.Time) CreateOutcomeLogParams {
	params := CreateOutcomeLogParams{
		MessageID:    o.MessageID,
		Success:      o.Success,
		FailureStage: string(o.FailureStage),
		CreatedAt:    at,
	}
	if o.Err != nil {
		params.Error = o.Err.Error()
	}
	return params
}

const createOutcomeLog = `-- name: CreateOutcomeLog :exec
INSERT INTO processing_outcomes (message_id, success, failure_stage, error, created_at)
VALUES ($1, $2, $3, $4, $5)
`

func (q *Queries) CreateOutcomeLog(ctx context.Context, arg CreateOutcomeLogParams) error {
	_, err := q.db.ExecContext(ctx, createOutcomeLog,
		arg.MessageID,
		arg.Success,
		arg.FailureStage,
		arg.Error,
		arg.CreatedAt,
	)
	return err
}

type LedgerRow struct {
	MessageID   string
	ArtifactKey string
	RecordedAt  time.Time
}

const getLedgerEntry = `-- name: GetLedgerEntry :one
SELECT message_id, artifact_key, recorded_at FROM page_ledger
WHERE message_id = $1
`

func (q *Queries) GetLedgerEntry(ctx context.Context, messageID string) (LedgerRow, error) {
	row := q.db.QueryRowContext(ctx, getLedgerEntry, messageID)
	var i LedgerRow
	err := row.Scan(&i.MessageID, &i.ArtifactKey, &i.RecordedAt)
	return i, err
}

type UpsertLedgerEntryParams struct {
	MessageID   string
	ArtifactKey string
	RecordedAt  time.Time
}

const upsertLedgerEntry = `-- name: UpsertLedgerEntry :exec
INSERT INTO page_ledger (message_id, artifact_key, recorded_at)
VALUES ($1, $2, $3)
ON CONFLICT (message_id) DO UPDATE
SET artifact_key = EXCLUDED.artifact_key, recorded_at = EXCLUDED.recorded_at
`

func (q *Queries) UpsertLedgerEntry(ctx context.Context, arg UpsertLedgerEntryParams) error {
	_, err := q.db.ExecContext(ctx, upsertLedgerEntry, arg.MessageID, arg.ArtifactKey, arg.RecordedAt)
	return err
}

const deleteLedgerEntriesBefore = `-- name: DeleteLedgerEntriesBefore :execrows
DELETE FROM page_ledger WHERE recorded_at < $1
`

func (q *Queries) DeleteLedgerEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteLedgerEntriesBefore, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
