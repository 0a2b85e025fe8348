package keka

// Group is an organizational group an employee belongs to.
type Group struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	GroupType int    `json:"groupType"`
}

// Employee is a roster entry returned by the employees endpoint.
type Employee struct {
	ID                        string  `json:"id"`
	FirstName                 string  `json:"firstName"`
	MiddleName                string  `json:"middleName"`
	LastName                  string  `json:"lastName"`
	DisplayName               string  `json:"displayName"`
	DateOfJoin                string  `json:"dateOfJoin"`
	ResignationSubmittedDate  *string `json:"resignationSubmittedDate"`
	Groups                    []Group `json:"groups"`
}

// Punch is a single clock event timestamp. The attendance endpoint
// nests first-in and last-out punches; either may be absent.
type Punch struct {
	Timestamp string `json:"timestamp"`
}

// AttendanceRecord is one employee-day as reported by the attendance
// endpoint. Timestamps are UTC ISO strings.
type AttendanceRecord struct {
	ID                             string  `json:"id"`
	EmployeeIdentifier             string  `json:"employeeIdentifier"`
	AttendanceDate                 string  `json:"attendanceDate"`
	ShiftStartTime                 string  `json:"shiftStartTime"`
	ShiftEndTime                   string  `json:"shiftEndTime"`
	ShiftDuration                  float64 `json:"shiftDuration"`
	FirstInOfTheDay                *Punch  `json:"firstInOfTheDay"`
	LastOutOfTheDay                *Punch  `json:"lastOutOfTheDay"`
	TotalGrossHours                float64 `json:"totalGrossHours"`
	TotalBreakDuration             float64 `json:"totalBreakDuration"`
	TotalEffectiveHours            float64 `json:"totalEffectiveHours"`
	TotalEffectiveOvertimeDuration float64 `json:"totalEffectiveOvertimeDuration"`
}

// AttendancePage is one page of attendance records plus paging totals.
type AttendancePage struct {
	Records      []AttendanceRecord
	TotalPages   int
	TotalRecords int
}

// EmployeePage is one page of roster entries plus paging totals.
type EmployeePage struct {
	Employees    []Employee
	TotalPages   int
	TotalRecords int
}

type attendanceResponse struct {
	Succeeded    bool               `json:"succeeded"`
	Message      string             `json:"message"`
	Errors       []string           `json:"errors"`
	Data         []AttendanceRecord `json:"data"`
	TotalPages   int                `json:"totalPages"`
	TotalRecords int                `json:"totalRecords"`
}

type employeesResponse struct {
	Succeeded    bool       `json:"succeeded"`
	Message      string     `json:"message"`
	Data         []Employee `json:"data"`
	TotalPages   int        `json:"totalPages"`
	TotalRecords int        `json:"totalRecords"`
}
