package sync

import (
	"context"

	"github.com/sequoiaprint/keka-integrations/pkg/hrstore"
	"github.com/sequoiaprint/keka-integrations/pkg/keka"
)

// MockAttendanceStore is a mock implementation of hrstore.AttendanceStore
type MockAttendanceStore struct {
	ListEmployeeIdentifiersFunc func(ctx context.Context) ([]string, error)
	GetOffdaysFunc              func(ctx context.Context, employeeID string) (string, error)
	HasAttendanceOnFunc         func(ctx context.Context, employeeID, date string) (bool, error)
	UpsertAttendanceFunc        func(ctx context.Context, rec *hrstore.Attendance) (bool, error)
}

func (m *MockAttendanceStore) ListEmployeeIdentifiers(ctx context.Context) ([]string, error) {
	if m.ListEmployeeIdentifiersFunc != nil {
		return m.ListEmployeeIdentifiersFunc(ctx)
	}
	return nil, nil
}

func (m *MockAttendanceStore) GetOffdays(ctx context.Context, employeeID string) (string, error) {
	if m.GetOffdaysFunc != nil {
		return m.GetOffdaysFunc(ctx, employeeID)
	}
	return "", nil
}

func (m *MockAttendanceStore) HasAttendanceOn(ctx context.Context, employeeID, date string) (bool, error) {
	if m.HasAttendanceOnFunc != nil {
		return m.HasAttendanceOnFunc(ctx, employeeID, date)
	}
	return false, nil
}

func (m *MockAttendanceStore) UpsertAttendance(ctx context.Context, rec *hrstore.Attendance) (bool, error) {
	if m.UpsertAttendanceFunc != nil {
		return m.UpsertAttendanceFunc(ctx, rec)
	}
	return true, nil
}

// MockRosterStore is a mock implementation of hrstore.RosterStore
type MockRosterStore struct {
	ListEmployeesFunc          func(ctx context.Context) ([]*hrstore.Employee, error)
	AssignedIdentifiersFunc    func(ctx context.Context) (map[string]struct{}, error)
	NamesForIdentifierFunc     func(ctx context.Context, identifier string) ([]string, error)
	UpdateEmployeeIdentityFunc func(ctx context.Context, name, identifier, joiningDate string) error
}

func (m *MockRosterStore) ListEmployees(ctx context.Context) ([]*hrstore.Employee, error) {
	if m.ListEmployeesFunc != nil {
		return m.ListEmployeesFunc(ctx)
	}
	return nil, nil
}

func (m *MockRosterStore) AssignedIdentifiers(ctx context.Context) (map[string]struct{}, error) {
	if m.AssignedIdentifiersFunc != nil {
		return m.AssignedIdentifiersFunc(ctx)
	}
	return map[string]struct{}{}, nil
}

func (m *MockRosterStore) NamesForIdentifier(ctx context.Context, identifier string) ([]string, error) {
	if m.NamesForIdentifierFunc != nil {
		return m.NamesForIdentifierFunc(ctx, identifier)
	}
	return nil, nil
}

func (m *MockRosterStore) UpdateEmployeeIdentity(ctx context.Context, name, identifier, joiningDate string) error {
	if m.UpdateEmployeeIdentityFunc != nil {
		return m.UpdateEmployeeIdentityFunc(ctx, name, identifier, joiningDate)
	}
	return nil
}

// MockAttendanceAPI is a mock implementation of AttendanceAPI
type MockAttendanceAPI struct {
	AttendancePageFunc func(ctx context.Context, token, employeeID, from, to string, page int) (*keka.AttendancePage, error)
}

func (m *MockAttendanceAPI) AttendancePage(ctx context.Context, token, employeeID, from, to string, page int) (*keka.AttendancePage, error) {
	if m.AttendancePageFunc != nil {
		return m.AttendancePageFunc(ctx, token, employeeID, from, to, page)
	}
	return &keka.AttendancePage{}, nil
}

// MockEmployeeAPI is a mock implementation of EmployeeAPI
type MockEmployeeAPI struct {
	EmployeesPageFunc func(ctx context.Context, token string, page int) (*keka.EmployeePage, error)
}

func (m *MockEmployeeAPI) EmployeesPage(ctx context.Context, token string, page int) (*keka.EmployeePage, error) {
	if m.EmployeesPageFunc != nil {
		return m.EmployeesPageFunc(ctx, token, page)
	}
	return &keka.EmployeePage{TotalPages: 1}, nil
}

// MockTokenSource is a mock implementation of TokenSource
type MockTokenSource struct {
	TokenFunc   func(ctx context.Context) (string, bool, error)
	RefreshFunc func(ctx context.Context) (string, error)
}

func (m *MockTokenSource) Token(ctx context.Context) (string, bool, error) {
	if m.TokenFunc != nil {
		return m.TokenFunc(ctx)
	}
	return "tok-test", false, nil
}

func (m *MockTokenSource) Refresh(ctx context.Context) (string, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx)
	}
	return "tok-refreshed", nil
}
