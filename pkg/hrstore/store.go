// Package hrstore persists the factory roster and attendance data in
// PostgreSQL. The sync engines write through it; report queries read
// from the same tables elsewhere.
package hrstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a lookup finds no matching record.
var ErrNotFound = errors.New("record not found")

// Employee is a local roster entry. EmployeeID is the remote system's
// identifier; empty until the employee sync matches the row by name.
type Employee struct {
	ID          int64
	Name        string
	EmployeeID  string
	JoiningDate string
	Floor       string
	Division    string
	Machine     string
	JobTitle    string
	Offdays     string
}

// Attendance is one employee-day ready for persistence. Timestamps are
// IST local-clock strings ("2006-01-02 15:04:05"), Date is YYYY-MM-DD.
// FirstIn and LastOut may be empty when the punch is absent.
type Attendance struct {
	RemoteID                       string
	EmployeeID                     string
	Date                           string
	ShiftStart                     string
	ShiftEnd                       string
	ShiftDuration                  float64
	FirstIn                        string
	LastOut                        string
	TotalGrossHours                float64
	TotalBreakDuration             float64
	TotalEffectiveHours            float64
	TotalEffectiveOvertimeDuration float64
	IsOffday                       bool
}

// AttendanceStore defines persistence operations used by the attendance sync engine.
type AttendanceStore interface {
	// ListEmployeeIdentifiers returns remote identifiers of all roster
	// rows that have one, in stable (insertion) order.
	ListEmployeeIdentifiers(ctx context.Context) ([]string, error)

	// GetOffdays returns the comma-separated weekly off-days configured
	// for the employee, or empty when none are set.
	GetOffdays(ctx context.Context, employeeID string) (string, error)

	// HasAttendanceOn reports whether a row exists for (employeeID, date).
	HasAttendanceOn(ctx context.Context, employeeID, date string) (bool, error)

	// UpsertAttendance inserts or updates the row for the record's
	// (employee, date) pair. created reports whether a new row was
	// inserted rather than an existing one updated.
	UpsertAttendance(ctx context.Context, rec *Attendance) (created bool, err error)
}

// RosterStore defines persistence operations used by the employee sync engine.
type RosterStore interface {
	// ListEmployees returns every roster row.
	ListEmployees(ctx context.Context) ([]*Employee, error)

	// AssignedIdentifiers returns the set of remote identifiers already
	// held by roster rows.
	AssignedIdentifiers(ctx context.Context) (map[string]struct{}, error)

	// NamesForIdentifier returns the names of roster rows holding the
	// given remote identifier, for conflict logging.
	NamesForIdentifier(ctx context.Context, identifier string) ([]string, error)

	// UpdateEmployeeIdentity sets the remote identifier and joining date
	// on the roster row with the given name.
	UpdateEmployeeIdentity(ctx context.Context, name, identifier, joiningDate string) error
}

// Store bundles all persistence operations the sync daemon needs.
type Store interface {
	AttendanceStore
	RosterStore
}
