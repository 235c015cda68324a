package main

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	db, sqlMock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Database{db: db, queries: New(db)}, sqlMock
}

func TestEnsureSchema(t *testing.T) {
	db, sqlMock := newMockDB(t)

	sqlMock.ExpectExec(schema).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, db.EnsureSchema(context.Background()))

	sqlMock.ExpectExec(schema).WillReturnError(assert.AnError)
	assert.ErrorIs(t, db.EnsureSchema(context.Background()), assert.AnError)

	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestCreateOutcomeLog(t *testing.T) {
	db, sqlMock := newMockDB(t)
	at := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	sqlMock.ExpectExec(createOutcomeLog).
		WithArgs("m-1", false, "store", "store failed: bucket gone", at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := db.CreateOutcomeLog(context.Background(), CreateOutcomeLogParams{
		MessageID:    "m-1",
		Success:      false,
		FailureStage: "store",
		Error:        "store failed: bucket gone",
		CreatedAt:    at,
	})

	require.NoError(t, err)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}
