package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/gleamops/fieldops-api/internal/models"
)

func TestConflictRepositoryRecordBatchIdempotent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewConflictRepository(db)
	conflicts := []models.ScheduleConflict{{
		ID:           "cfl-1",
		ConflictType: models.ConflictDoubleBooking,
		IsBlocking:   true,
		Description:  "overlapping assignment",
	}}

	// First sweep inserts the row.
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.RecordBatch(context.Background(), conflicts))

	// A re-run over an unchanged schedule carries the same id and must not
	// error out on the duplicate key.
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.RecordBatch(context.Background(), conflicts))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictRepositoryMarkResolved(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewConflictRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_conflicts")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.MarkResolved(context.Background(), []string{"cfl-1", "cfl-2"}, "mgr-1", "rescheduled")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
