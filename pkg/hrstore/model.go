package hrstore

import (
	"github.com/uptrace/bun"
)

// EmployeeDao is a data access object that maps directly to the 'employees' table in PostgreSQL.
// Roster rows are created by the floor-management tooling; the sync engine only
// updates the remote identifier and joining date on existing rows.
type EmployeeDao struct {
	bun.BaseModel     `bun:"table:employees,alias:e"`
	ID                int64   `bun:"id,pk,autoincrement"`
	Name              string  `bun:"name,notnull,type:varchar(255)"`
	EmployeeID        *string `bun:"employee_id,unique,type:varchar(64)"`
	JoiningDate       *string `bun:"joining_date,type:varchar(10)"`
	Floor             *string `bun:"floor,type:varchar(64)"`
	Division          *string `bun:"division,type:varchar(64)"`
	Machine           *string `bun:"machine,type:varchar(64)"`
	JobTitle          *string `bun:"jobtitle,type:varchar(128)"`
	RegularShiftStart *string `bun:"regular_shift_start,type:varchar(16)"`
	RegularShiftEnd   *string `bun:"regular_shift_end,type:varchar(16)"`
	Offdays           *string `bun:"offdays,type:varchar(128)"`
}

// AttendanceDao is a data access object that maps directly to the 'attendance' table in PostgreSQL.
// Timestamps are stored as IST local-clock strings, dates as YYYY-MM-DD.
// At most one row exists per (employee_id, attendance_date).
type AttendanceDao struct {
	bun.BaseModel                  `bun:"table:attendance,alias:a"`
	RowID                          int64   `bun:"row_id,pk,autoincrement"`
	ID                             string  `bun:"id,notnull,type:varchar(64)"`
	EmployeeID                     string  `bun:"employee_id,notnull,type:varchar(64)"`
	AttendanceDate                 string  `bun:"attendance_date,notnull,type:varchar(10)"`
	ShiftStart                     string  `bun:"shift_start,notnull,type:varchar(19)"`
	ShiftEnd                       string  `bun:"shift_end,notnull,type:varchar(19)"`
	ShiftDuration                  float64 `bun:"shift_duration,notnull,default:0"`
	FirstInOfTheDayTime            *string `bun:"first_in_of_the_day_time,type:varchar(19)"`
	LastOutOfTheDayTime            *string `bun:"last_out_of_the_day_time,type:varchar(19)"`
	TotalGrossHours                float64 `bun:"total_gross_hours,notnull,default:0"`
	TotalBreakDuration             float64 `bun:"total_break_duration,notnull,default:0"`
	TotalEffectiveHours            float64 `bun:"total_effective_hours,notnull,default:0"`
	TotalEffectiveOvertimeDuration float64 `bun:"total_effective_overtime_duration,notnull,default:0"`
	IsOffday                       bool    `bun:"is_offday,notnull,default:false"`
}

func toAttendanceDao(rec *Attendance) *AttendanceDao {
	dao := &AttendanceDao{
		ID:                             rec.RemoteID,
		EmployeeID:                     rec.EmployeeID,
		AttendanceDate:                 rec.Date,
		ShiftStart:                     rec.ShiftStart,
		ShiftEnd:                       rec.ShiftEnd,
		ShiftDuration:                  rec.ShiftDuration,
		TotalGrossHours:                rec.TotalGrossHours,
		TotalBreakDuration:             rec.TotalBreakDuration,
		TotalEffectiveHours:            rec.TotalEffectiveHours,
		TotalEffectiveOvertimeDuration: rec.TotalEffectiveOvertimeDuration,
		IsOffday:                       rec.IsOffday,
	}

	if rec.FirstIn != "" {
		dao.FirstInOfTheDayTime = &rec.FirstIn
	}
	if rec.LastOut != "" {
		dao.LastOutOfTheDayTime = &rec.LastOut
	}

	return dao
}

func toEmployee(dao *EmployeeDao) *Employee {
	emp := &Employee{
		ID:   dao.ID,
		Name: dao.Name,
	}

	if dao.EmployeeID != nil {
		emp.EmployeeID = *dao.EmployeeID
	}
	if dao.JoiningDate != nil {
		emp.JoiningDate = *dao.JoiningDate
	}
	if dao.Floor != nil {
		emp.Floor = *dao.Floor
	}
	if dao.Division != nil {
		emp.Division = *dao.Division
	}
	if dao.Machine != nil {
		emp.Machine = *dao.Machine
	}
	if dao.JobTitle != nil {
		emp.JobTitle = *dao.JobTitle
	}
	if dao.Offdays != nil {
		emp.Offdays = *dao.Offdays
	}

	return emp
}
