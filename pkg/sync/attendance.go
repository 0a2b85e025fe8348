package sync

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sequoiaprint/keka-integrations/internal/metrics"
	apperrors "github.com/sequoiaprint/keka-integrations/pkg/app/errors"
	"github.com/sequoiaprint/keka-integrations/pkg/hrstore"
	"github.com/sequoiaprint/keka-integrations/pkg/keka"
	"github.com/sequoiaprint/keka-integrations/pkg/kvcache"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"

	// lookbackDays is fetched for an employee with no record for today yet.
	lookbackDays = 14

	employeeIDsCacheTTL = time.Hour
)

// istZone converts remote UTC timestamps to the factory's wall clock.
var istZone = time.FixedZone("IST", 5*3600+30*60)

// AttendanceSummary reports what one attendance run accomplished.
type AttendanceSummary struct {
	EmployeesProcessed int `json:"employeesProcessed"`
	NewRecords         int `json:"newRecords"`
	UpdatedRecords     int `json:"updatedRecords"`
	SkippedRecords     int `json:"skippedRecords"`
	FailedEmployees    int `json:"failedEmployees"`
}

// AttendanceSyncer crawls attendance data employee by employee, page
// by page, checkpointing after every page so an interrupted run picks
// up where it stopped.
type AttendanceSyncer struct {
	store       hrstore.AttendanceStore
	api         AttendanceAPI
	tokens      TokenSource
	cache       kvcache.Store
	checkpoints *CheckpointStore
	limiter     *Limiter
	pageDelay   time.Duration
	logger      *zap.Logger

	// running coalesces overlapping triggers
	running sync.Mutex

	// now is swappable in tests
	now func() time.Time
}

// NewAttendanceSyncer wires an attendance engine. quota and window
// configure its rate limiter; pageDelay spaces successive page fetches.
func NewAttendanceSyncer(
	store hrstore.AttendanceStore,
	api AttendanceAPI,
	tokens TokenSource,
	cache kvcache.Store,
	quota int,
	window time.Duration,
	pageDelay time.Duration,
	logger *zap.Logger,
) *AttendanceSyncer {
	logger = logger.Named("attendance-sync")
	checkpoints := NewCheckpointStore(cache, attendanceCheckpointKey, window, logger)
	return &AttendanceSyncer{
		store:       store,
		api:         api,
		tokens:      tokens,
		cache:       cache,
		checkpoints: checkpoints,
		limiter:     NewLimiter("attendance", quota, window, checkpoints, logger),
		pageDelay:   pageDelay,
		logger:      logger,
		now:         time.Now,
	}
}

// Run executes one full sync pass. Returns ErrRunInProgress when a
// previous pass is still executing. On failure the checkpoint is
// persisted so the next run resumes; on full completion it is deleted.
func (s *AttendanceSyncer) Run(ctx context.Context) (*AttendanceSummary, error) {
	if !s.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock()

	runID := uuid.NewString()
	s.logger.Info("attendance sync run starting", zap.String("run_id", runID))

	start := s.now()
	summary, err := s.run(ctx)
	took := s.now().Sub(start)
	metrics.SyncDuration.WithLabelValues("attendance").Observe(took.Seconds())
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues("attendance", "error").Inc()
		s.logger.Warn("attendance sync run failed",
			zap.String("run_id", runID), zap.Duration("took", took), zap.Error(err))
		return summary, err
	}
	metrics.SyncRunsTotal.WithLabelValues("attendance", "success").Inc()
	s.logger.Info("attendance sync run finished",
		zap.String("run_id", runID), zap.Duration("took", took))
	return summary, nil
}

func (s *AttendanceSyncer) run(ctx context.Context) (*AttendanceSummary, error) {
	summary := &AttendanceSummary{}

	cp, err := s.checkpoints.Load(ctx)
	if err != nil {
		return summary, err
	}

	token, fetched, err := s.tokens.Token(ctx)
	if err != nil {
		s.saveCheckpoint(ctx, cp)
		return summary, err
	}
	if fetched {
		if _, err := s.limiter.RecordCall(ctx, cp); err != nil {
			return summary, err
		}
		metrics.RemoteCallsTotal.WithLabelValues("token").Inc()
	}

	employeeIDs, err := s.loadEmployeeIDs(ctx)
	if err != nil {
		s.saveCheckpoint(ctx, cp)
		return summary, err
	}
	if len(employeeIDs) == 0 {
		s.logger.Info("no employees with remote identifiers, nothing to sync")
		return summary, s.checkpoints.Clear(ctx)
	}

	// Pin the entity list in the checkpoint so a resumed run pages
	// through the same ordering even if the roster changed meanwhile.
	if !equalIDs(cp.EntityIDSnapshot, employeeIDs) {
		if cp.EntityIDSnapshot != nil {
			// Roster changed mid-run; restart iteration over the new list.
			cp.CursorEntityIndex = 0
			cp.CursorPage = 1
		}
		cp.EntityIDSnapshot = employeeIDs
		cp.TotalEntities = len(employeeIDs)
		if err := s.checkpoints.Save(ctx, cp); err != nil {
			return summary, err
		}
	}
	ids := cp.EntityIDSnapshot

	startIndex := cp.CursorEntityIndex
	if startIndex < 0 {
		startIndex = 0
	}
	startPage := cp.CursorPage

	s.logger.Info("starting attendance sync",
		zap.Int("employees", len(ids)),
		zap.Int("start_index", startIndex),
		zap.Int("start_page", startPage))

	for index := startIndex; index < len(ids); index++ {
		if err := ctx.Err(); err != nil {
			s.saveCheckpoint(ctx, cp)
			return summary, err
		}

		employeeID := ids[index]
		cp.CurrentEntityID = employeeID
		cp.CursorEntityIndex = index
		if err := s.checkpoints.Save(ctx, cp); err != nil {
			return summary, err
		}

		page := 1
		if index == startIndex {
			page = startPage
		}

		token, err = s.syncEmployee(ctx, cp, token, employeeID, page, summary)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.saveCheckpoint(ctx, cp)
				return summary, err
			}
			// Contain the failure to this employee and move on.
			s.logger.Error("employee attendance sync failed, moving to next",
				zap.String("employee_id", employeeID), zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("attendance", "employee").Inc()
			summary.FailedEmployees++
		} else {
			summary.EmployeesProcessed++
		}

		cp.CursorPage = 1
		if err := s.checkpoints.Save(ctx, cp); err != nil {
			return summary, err
		}
	}

	if err := s.checkpoints.Clear(ctx); err != nil {
		return summary, err
	}

	s.logger.Info("attendance sync completed",
		zap.Int("employees_processed", summary.EmployeesProcessed),
		zap.Int("new_records", summary.NewRecords),
		zap.Int("updated_records", summary.UpdatedRecords),
		zap.Int("skipped_records", summary.SkippedRecords),
		zap.Int("failed_employees", summary.FailedEmployees))
	return summary, nil
}

// syncEmployee pages through one employee's attendance starting at
// startPage. Returns the (possibly refreshed) token for subsequent
// employees.
func (s *AttendanceSyncer) syncEmployee(ctx context.Context, cp *Checkpoint, token, employeeID string, startPage int, summary *AttendanceSummary) (string, error) {
	offdays, err := s.store.GetOffdays(ctx, employeeID)
	if err != nil && !errors.Is(err, hrstore.ErrNotFound) {
		return token, err
	}

	from, to, err := s.fetchWindow(ctx, employeeID)
	if err != nil {
		return token, err
	}

	page := startPage
	for {
		result, refreshed, err := s.fetchPage(ctx, cp, token, employeeID, from, to, page)
		if refreshed != "" {
			token = refreshed
		}
		if err != nil {
			cp.CursorPage = page
			s.saveCheckpoint(ctx, cp)
			return token, err
		}

		for i := range result.Records {
			created, err := s.saveRecord(ctx, employeeID, offdays, &result.Records[i])
			switch {
			case err == nil && created:
				summary.NewRecords++
				metrics.AttendanceRecordsTotal.WithLabelValues("inserted").Inc()
			case err == nil:
				summary.UpdatedRecords++
				metrics.AttendanceRecordsTotal.WithLabelValues("updated").Inc()
			case apperrors.Is(err, apperrors.CategoryDataError),
				apperrors.Is(err, apperrors.CategoryDataConflict):
				// Unusable or already-written records are benign
				summary.SkippedRecords++
				metrics.AttendanceRecordsTotal.WithLabelValues("skipped").Inc()
			default:
				cp.CursorPage = page
				s.saveCheckpoint(ctx, cp)
				return token, err
			}
		}

		cp.CursorPage = page
		cp.Paused = false
		if err := s.checkpoints.Save(ctx, cp); err != nil {
			return token, err
		}

		if page >= result.TotalPages || result.TotalPages == 0 {
			return token, nil
		}
		page++

		if err := sleepCtx(ctx, s.pageDelay); err != nil {
			return token, err
		}
	}
}

// fetchPage performs one rate-accounted page fetch, refreshing the
// credential and retrying once on a 401.
func (s *AttendanceSyncer) fetchPage(ctx context.Context, cp *Checkpoint, token, employeeID, from, to string, page int) (*keka.AttendancePage, string, error) {
	if _, err := s.limiter.RecordCall(ctx, cp); err != nil {
		return nil, "", err
	}
	metrics.RemoteCallsTotal.WithLabelValues("attendance").Inc()

	result, err := s.api.AttendancePage(ctx, token, employeeID, from, to, page)
	if err == nil {
		return result, "", nil
	}
	if !apperrors.Is(err, apperrors.CategoryUnauthorized) {
		return nil, "", err
	}

	s.logger.Info("credential rejected, refreshing and retrying page",
		zap.String("employee_id", employeeID), zap.Int("page", page))

	refreshed, err := s.tokens.Refresh(ctx)
	if err != nil {
		return nil, "", err
	}
	// The exchange and the retried fetch are two separate remote
	// calls; each one is charged against the quota.
	if _, err := s.limiter.RecordCall(ctx, cp); err != nil {
		return nil, refreshed, err
	}
	metrics.RemoteCallsTotal.WithLabelValues("token").Inc()

	if _, err := s.limiter.RecordCall(ctx, cp); err != nil {
		return nil, refreshed, err
	}
	metrics.RemoteCallsTotal.WithLabelValues("attendance").Inc()

	result, err = s.api.AttendancePage(ctx, refreshed, employeeID, from, to, page)
	if err != nil {
		return nil, refreshed, err
	}
	return result, refreshed, nil
}

// fetchWindow picks the date range for one employee: a short
// yesterday-to-today window when today's record already exists, a
// two-week lookback otherwise. Dates are the factory's wall clock.
func (s *AttendanceSyncer) fetchWindow(ctx context.Context, employeeID string) (from, to string, err error) {
	today := s.now().In(istZone)
	to = today.Format(dateLayout)

	hasToday, err := s.store.HasAttendanceOn(ctx, employeeID, to)
	if err != nil {
		return "", "", err
	}

	if hasToday {
		from = today.AddDate(0, 0, -1).Format(dateLayout)
	} else {
		from = today.AddDate(0, 0, -lookbackDays).Format(dateLayout)
	}
	return from, to, nil
}

// saveRecord converts one remote record and upserts it. Records
// missing shift boundaries are rejected with a DataError.
func (s *AttendanceSyncer) saveRecord(ctx context.Context, employeeID, offdays string, rec *keka.AttendanceRecord) (bool, error) {
	date := strings.SplitN(rec.AttendanceDate, "T", 2)[0]

	shiftStart := toISTTimestamp(rec.ShiftStartTime)
	shiftEnd := toISTTimestamp(rec.ShiftEndTime)
	if shiftStart == "" || shiftEnd == "" {
		s.logger.Warn("skipping attendance record with invalid shift times",
			zap.String("employee_id", employeeID), zap.String("date", date))
		return false, apperrors.ValidationError(nil, "attendance record missing shift times")
	}

	row := &hrstore.Attendance{
		RemoteID:                       rec.ID,
		EmployeeID:                     employeeID,
		Date:                           date,
		ShiftStart:                     shiftStart,
		ShiftEnd:                       shiftEnd,
		ShiftDuration:                  rec.ShiftDuration,
		TotalGrossHours:                rec.TotalGrossHours,
		TotalBreakDuration:             rec.TotalBreakDuration,
		TotalEffectiveHours:            rec.TotalEffectiveHours,
		TotalEffectiveOvertimeDuration: rec.TotalEffectiveOvertimeDuration,
		IsOffday:                       isOffday(rec.AttendanceDate, offdays),
	}
	if rec.FirstInOfTheDay != nil {
		row.FirstIn = toISTTimestamp(rec.FirstInOfTheDay.Timestamp)
	}
	if rec.LastOutOfTheDay != nil {
		row.LastOut = toISTTimestamp(rec.LastOutOfTheDay.Timestamp)
	}

	return s.store.UpsertAttendance(ctx, row)
}

// loadEmployeeIDs reads the entity list from the short-lived cache,
// falling back to the database and repopulating the cache.
func (s *AttendanceSyncer) loadEmployeeIDs(ctx context.Context) ([]string, error) {
	if raw, err := s.cache.Get(ctx, employeeIDsCacheKey); err == nil {
		var ids []string
		if err := json.Unmarshal(raw, &ids); err == nil {
			return ids, nil
		}
		s.logger.Warn("corrupt employee id cache, reloading from database")
	}

	ids, err := s.store.ListEmployeeIdentifiers(ctx)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(ids); err == nil {
		if err := s.cache.SetTTL(ctx, employeeIDsCacheKey, raw, employeeIDsCacheTTL); err != nil {
			s.logger.Warn("failed to cache employee ids", zap.Error(err))
		}
	}
	return ids, nil
}

// ClearEmployeeIDCache drops the cached entity list so the next run
// re-reads it from the database.
func (s *AttendanceSyncer) ClearEmployeeIDCache(ctx context.Context) error {
	return s.cache.Delete(ctx, employeeIDsCacheKey)
}

// Status describes the engine's durable state for diagnostics.
type Status struct {
	CheckpointPresent bool      `json:"checkpointPresent"`
	CallCount         int       `json:"callCount"`
	Quota             int       `json:"quota"`
	WindowStart       time.Time `json:"windowStart,omitempty"`
	TimeUntilReset    string    `json:"timeUntilReset,omitempty"`
	CursorEntityIndex int       `json:"cursorEntityIndex"`
	CursorPage        int       `json:"cursorPage"`
	TotalEntities     int       `json:"totalEntities"`
	CurrentEntityID   string    `json:"currentEntityId,omitempty"`
	Paused            bool      `json:"paused"`
}

// Status reports the current checkpoint without mutating it.
func (s *AttendanceSyncer) Status(ctx context.Context) (*Status, error) {
	return checkpointStatus(ctx, s.checkpoints, s.limiter.quota, s.now)
}

// Reset discards the engine's checkpoint, restarting rate accounting
// and crawl position.
func (s *AttendanceSyncer) Reset(ctx context.Context) error {
	s.logger.Info("attendance checkpoint manually reset")
	return s.checkpoints.Clear(ctx)
}

func checkpointStatus(ctx context.Context, store *CheckpointStore, quota int, now func() time.Time) (*Status, error) {
	cp, err := store.Peek(ctx)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return &Status{Quota: quota, CursorPage: 1}, nil
	}

	remaining := store.Window() - now().Sub(cp.WindowStart)
	if remaining < 0 {
		remaining = 0
	}
	return &Status{
		CheckpointPresent: true,
		CallCount:         cp.CallCount,
		Quota:             quota,
		WindowStart:       cp.WindowStart,
		TimeUntilReset:    remaining.Round(time.Second).String(),
		CursorEntityIndex: cp.CursorEntityIndex,
		CursorPage:        cp.CursorPage,
		TotalEntities:     cp.TotalEntities,
		CurrentEntityID:   cp.CurrentEntityID,
		Paused:            cp.Paused,
	}, nil
}

// saveCheckpoint persists cp on the failure path, logging rather than
// masking the original error.
func (s *AttendanceSyncer) saveCheckpoint(ctx context.Context, cp *Checkpoint) {
	if err := s.checkpoints.Save(ctx, cp); err != nil {
		s.logger.Error("failed to save checkpoint", zap.Error(err))
	}
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// toISTTimestamp converts a remote UTC timestamp to an IST local-clock
// string, or empty when the input is absent or unparseable.
func toISTTimestamp(utc string) string {
	if utc == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, utc)
	if err != nil {
		// Some endpoints omit the zone suffix; those values are UTC.
		t, err = time.Parse("2006-01-02T15:04:05", utc)
		if err != nil {
			return ""
		}
	}
	return t.In(istZone).Format(timestampLayout)
}

// isOffday reports whether the record's weekday is in the employee's
// configured off-day list ("Sunday, Thursday").
func isOffday(attendanceDate, offdays string) bool {
	if offdays == "" {
		return false
	}
	day := strings.SplitN(attendanceDate, "T", 2)[0]
	t, err := time.Parse(dateLayout, day)
	if err != nil {
		return false
	}
	weekday := strings.ToLower(t.Weekday().String())
	for _, off := range strings.Split(offdays, ",") {
		if strings.ToLower(strings.TrimSpace(off)) == weekday {
			return true
		}
	}
	return false
}
