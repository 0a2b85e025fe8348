package sync

import (
	"context"
	"errors"

	"github.com/sequoiaprint/keka-integrations/pkg/keka"
)

// ErrRunInProgress is returned when a sync run is requested while a
// previous run of the same engine is still executing.
var ErrRunInProgress = errors.New("sync run already in progress")

// AttendanceAPI is the slice of the remote API the attendance engine uses.
type AttendanceAPI interface {
	AttendancePage(ctx context.Context, token, employeeID, from, to string, page int) (*keka.AttendancePage, error)
}

// EmployeeAPI is the slice of the remote API the employee engine uses.
type EmployeeAPI interface {
	EmployeesPage(ctx context.Context, token string, page int) (*keka.EmployeePage, error)
}

// TokenSource resolves the bearer credential. fetched reports whether
// resolution required a network call, which the engines charge against
// their rate quota.
type TokenSource interface {
	Token(ctx context.Context) (token string, fetched bool, err error)
	Refresh(ctx context.Context) (string, error)
}
