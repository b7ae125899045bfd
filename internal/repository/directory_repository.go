package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/gleamops/fieldops-api/internal/models"
)

// DirectoryRepository reads the staff/subcontractor directory and
// availability rules. Reference data only; this API never writes it.
type DirectoryRepository struct {
	db *sqlx.DB
}

// NewDirectoryRepository constructs the repository.
func NewDirectoryRepository(db *sqlx.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// GetStaff fetches one staff directory entry.
func (r *DirectoryRepository) GetStaff(ctx context.Context, id string) (*models.Staff, error) {
	const query = `SELECT id, user_id, full_name, role, active FROM staff WHERE id = $1`
	var staff models.Staff
	if err := r.db.GetContext(ctx, &staff, query, id); err != nil {
		return nil, err
	}
	return &staff, nil
}

// GetSubcontractor fetches one subcontractor directory entry.
func (r *DirectoryRepository) GetSubcontractor(ctx context.Context, id string) (*models.Subcontractor, error) {
	const query = `SELECT id, company_name, active FROM subcontractors WHERE id = $1`
	var sub models.Subcontractor
	if err := r.db.GetContext(ctx, &sub, query, id); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListAvailabilityRules returns a staff member's availability rules in a
// stable order.
func (r *DirectoryRepository) ListAvailabilityRules(ctx context.Context, staffID string) ([]models.AvailabilityRule, error) {
	const query = `SELECT id, staff_id, rule_type, day_of_week, date, starts_at, ends_at, created_at
		FROM staff_availability_rules
		WHERE staff_id = $1
		ORDER BY created_at ASC, id ASC`
	var rules []models.AvailabilityRule
	if err := r.db.SelectContext(ctx, &rules, query, staffID); err != nil {
		return nil, fmt.Errorf("list availability rules for %s: %w", staffID, err)
	}
	return rules, nil
}
