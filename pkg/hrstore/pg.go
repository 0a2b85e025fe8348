package hrstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	apperrors "github.com/sequoiaprint/keka-integrations/pkg/app/errors"
)

const uniqueViolationCode = "23505"

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the HR store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) ListEmployeeIdentifiers(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().
		Model((*EmployeeDao)(nil)).
		Column("employee_id").
		Where("employee_id IS NOT NULL").
		Where("employee_id != ''").
		Order("id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list employee identifiers: %w", err)
	}
	return ids, nil
}

func (s *pgStore) GetOffdays(ctx context.Context, employeeID string) (string, error) {
	var offdays sql.NullString
	err := s.db.NewSelect().
		Model((*EmployeeDao)(nil)).
		Column("offdays").
		Where("employee_id = ?", employeeID).
		Scan(ctx, &offdays)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get offdays for %s: %w", employeeID, err)
	}
	return offdays.String, nil
}

func (s *pgStore) HasAttendanceOn(ctx context.Context, employeeID, date string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*AttendanceDao)(nil)).
		Where("employee_id = ?", employeeID).
		Where("attendance_date = ?", date).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check attendance for %s on %s: %w", employeeID, date, err)
	}
	return exists, nil
}

func (s *pgStore) UpsertAttendance(ctx context.Context, rec *Attendance) (bool, error) {
	exists, err := s.HasAttendanceOn(ctx, rec.EmployeeID, rec.Date)
	if err != nil {
		return false, err
	}

	dao := toAttendanceDao(rec)

	if exists {
		_, err = s.db.NewUpdate().
			Model(dao).
			Column("id", "shift_start", "shift_end", "shift_duration",
				"first_in_of_the_day_time", "last_out_of_the_day_time",
				"total_gross_hours", "total_break_duration",
				"total_effective_hours", "total_effective_overtime_duration",
				"is_offday").
			Where("employee_id = ?", rec.EmployeeID).
			Where("attendance_date = ?", rec.Date).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to update attendance for %s on %s: %w", rec.EmployeeID, rec.Date, err)
		}
		return false, nil
	}

	_, err = s.db.NewInsert().
		Model(dao).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			// A concurrent writer beat us to the (employee, date) pair.
			return false, apperrors.ConflictError(err, fmt.Sprintf("attendance exists for %s on %s", rec.EmployeeID, rec.Date))
		}
		return false, fmt.Errorf("failed to insert attendance for %s on %s: %w", rec.EmployeeID, rec.Date, err)
	}
	return true, nil
}

func (s *pgStore) ListEmployees(ctx context.Context) ([]*Employee, error) {
	var daos []EmployeeDao
	err := s.db.NewSelect().
		Model(&daos).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	employees := make([]*Employee, len(daos))
	for i := range daos {
		employees[i] = toEmployee(&daos[i])
	}
	return employees, nil
}

func (s *pgStore) AssignedIdentifiers(ctx context.Context) (map[string]struct{}, error) {
	var ids []string
	err := s.db.NewSelect().
		Model((*EmployeeDao)(nil)).
		Column("employee_id").
		Where("employee_id IS NOT NULL").
		Where("employee_id != ''").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list assigned identifiers: %w", err)
	}
	assigned := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		assigned[id] = struct{}{}
	}
	return assigned, nil
}

func (s *pgStore) NamesForIdentifier(ctx context.Context, identifier string) ([]string, error) {
	var names []string
	err := s.db.NewSelect().
		Model((*EmployeeDao)(nil)).
		Column("name").
		Where("employee_id = ?", identifier).
		Scan(ctx, &names)
	if err != nil {
		return nil, fmt.Errorf("failed to find names for identifier %s: %w", identifier, err)
	}
	return names, nil
}

func (s *pgStore) UpdateEmployeeIdentity(ctx context.Context, name, identifier, joiningDate string) error {
	_, err := s.db.NewUpdate().
		Model((*EmployeeDao)(nil)).
		Set("employee_id = ?", identifier).
		Set("joining_date = ?", joiningDate).
		Where("name = ?", name).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ConflictError(err, fmt.Sprintf("identifier %s already assigned", identifier))
		}
		return fmt.Errorf("failed to update identity for %q: %w", name, err)
	}
	return nil
}

// isUniqueViolation reports whether err is a postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolationCode
}
