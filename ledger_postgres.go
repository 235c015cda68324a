package main

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// the ledger has to outlive the process, redeliveries arrive in a later run
type PostgresLedger struct {
	queries *Queries
	now     func() time.Time
}

func NewPostgresLedger(db DBTX) *PostgresLedger {
	return &PostgresLedger{queries: New(db), now: time.Now}
}

func (p *PostgresLedger) Lookup(ctx context.Context, messageID string) (LedgerEntry, bool, error) {
	row, err := p.queries.GetLedgerEntry(ctx, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return LedgerEntry{}, false, nil
	}
	if err != nil {
		return LedgerEntry{}, false, err
	}
	return LedgerEntry{
		MessageID:   row.MessageID,
		ArtifactKey: row.ArtifactKey,
		RecordedAt:  row.RecordedAt,
	}, true, nil
}

func (p *PostgresLedger) Record(ctx context.Context, entry LedgerEntry) error {
	return p.queries.UpsertLedgerEntry(ctx, UpsertLedgerEntryParams{
		MessageID:   entry.MessageID,
		ArtifactKey: entry.ArtifactKey,
		RecordedAt:  entry.RecordedAt,
	})
}

func (p *PostgresLedger) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	return p.queries.DeleteLedgerEntriesBefore(ctx, p.now().Add(-olderThan))
}
