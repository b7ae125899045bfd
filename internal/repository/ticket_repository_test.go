package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTicketRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTicketRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "site_id", "period_id", "service_date", "starts_at", "ends_at", "status",
		"assignee_staff_id", "assignee_subcontractor_id", "required_role", "version_etag", "created_at", "updated_at",
	}).AddRow("tkt-1", "site-1", "per-1", "2025-06-01", now, now.Add(2*time.Hour), "SCHEDULED",
		"staff-a", nil, nil, int64(3), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, site_id, period_id")).
		WithArgs("tkt-1").
		WillReturnRows(rows)

	ticket, err := repo.GetByID(context.Background(), "tkt-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), ticket.VersionETag)
	require.Equal(t, "staff-a", *ticket.AssigneeStaffID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketRepositoryUpdateAssignmentVersionConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTicketRepository(db)
	staffID := "staff-b"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE work_tickets")).WillReturnResult(sqlmock.NewResult(0, 1))
	err := repo.UpdateAssignment(context.Background(), UpdateAssignmentParams{
		ID: "tkt-1", Version: 3, AssigneeStaffID: &staffID,
	})
	require.NoError(t, err)

	// Stale version: zero rows affected must surface as sql.ErrNoRows.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE work_tickets")).WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.UpdateAssignment(context.Background(), UpdateAssignmentParams{
		ID: "tkt-1", Version: 3, AssigneeStaffID: &staffID,
	})
	require.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketRepositoryListActiveAssignments(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTicketRepository(db)
	start := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"ticket_id", "staff_id", "site_id", "starts_at", "ends_at"}).
		AddRow("tkt-1", "staff-a", "site-1", start, start.Add(4*time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id AS ticket_id")).
		WithArgs("staff-a", "2025-06-01", "CANCELLED").
		WillReturnRows(rows)

	assignments, err := repo.ListActiveAssignmentsForStaffOnDate(context.Background(), "staff-a", "2025-06-01")
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	require.Equal(t, "tkt-1", assignments[0].TicketID)
	require.NoError(t, mock.ExpectationsWereMet())
}
