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

const rosterCacheTTL = 23 * time.Hour

// EmployeeSummary reports what one employee run accomplished.
type EmployeeSummary struct {
	RemoteEmployees int  `json:"remoteEmployees"`
	Matched         int  `json:"matched"`
	Updated         int  `json:"updated"`
	Conflicts       int  `json:"conflicts"`
	Unmatched       int  `json:"unmatched"`
	UsedCachedData  bool `json:"usedCachedData"`
}

// EmployeeSyncer crawls the global employee roster page by page,
// filters it to the configured organizational groups, caches the
// result durably and reconciles it against local roster rows by name.
type EmployeeSyncer struct {
	store        hrstore.RosterStore
	api          EmployeeAPI
	tokens       TokenSource
	cache        kvcache.Store
	checkpoints  *CheckpointStore
	limiter      *Limiter
	matcher      *NameMatcher
	targetGroups map[string]struct{}
	pageDelay    time.Duration
	logger       *zap.Logger

	running sync.Mutex

	now func() time.Time
}

// NewEmployeeSyncer wires an employee engine restricted to the given
// organizational group IDs.
func NewEmployeeSyncer(
	store hrstore.RosterStore,
	api EmployeeAPI,
	tokens TokenSource,
	cache kvcache.Store,
	matcher *NameMatcher,
	targetGroupIDs []string,
	quota int,
	window time.Duration,
	pageDelay time.Duration,
	logger *zap.Logger,
) *EmployeeSyncer {
	logger = logger.Named("employee-sync")
	checkpoints := NewCheckpointStore(cache, employeeCheckpointKey, window, logger)

	groups := make(map[string]struct{}, len(targetGroupIDs))
	for _, id := range targetGroupIDs {
		groups[id] = struct{}{}
	}

	return &EmployeeSyncer{
		store:        store,
		api:          api,
		tokens:       tokens,
		cache:        cache,
		checkpoints:  checkpoints,
		limiter:      NewLimiter("employees", quota, window, checkpoints, logger),
		matcher:      matcher,
		targetGroups: groups,
		pageDelay:    pageDelay,
		logger:       logger,
		now:          time.Now,
	}
}

// Run executes one full employee sync pass. On remote API failure it
// falls back to the last durably cached roster snapshot so local data
// stays eventually consistent; the fetch error is still returned.
func (s *EmployeeSyncer) Run(ctx context.Context) (*EmployeeSummary, error) {
	if !s.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock()

	runID := uuid.NewString()
	s.logger.Info("employee sync run starting", zap.String("run_id", runID))

	start := s.now()
	summary, err := s.run(ctx)
	took := s.now().Sub(start)
	metrics.SyncDuration.WithLabelValues("employees").Observe(took.Seconds())
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues("employees", "error").Inc()
		s.logger.Warn("employee sync run failed",
			zap.String("run_id", runID), zap.Duration("took", took), zap.Error(err))
		return summary, err
	}
	metrics.SyncRunsTotal.WithLabelValues("employees", "success").Inc()
	s.logger.Info("employee sync run finished",
		zap.String("run_id", runID), zap.Duration("took", took))
	return summary, nil
}

func (s *EmployeeSyncer) run(ctx context.Context) (*EmployeeSummary, error) {
	summary := &EmployeeSummary{}

	cp, err := s.checkpoints.Load(ctx)
	if err != nil {
		return summary, err
	}

	filtered, fetchErr := s.fetchRoster(ctx, cp)
	if fetchErr != nil {
		if errors.Is(fetchErr, context.Canceled) || errors.Is(fetchErr, context.DeadlineExceeded) {
			return summary, fetchErr
		}
		metrics.ErrorsTotal.WithLabelValues("employees", "fetch").Inc()

		cached, cacheErr := s.cachedRoster(ctx)
		if cacheErr != nil {
			s.logger.Error("remote fetch failed and no cached roster available",
				zap.Error(fetchErr), zap.NamedError("cache_error", cacheErr))
			return summary, fetchErr
		}

		s.logger.Warn("remote fetch failed, reconciling from cached roster",
			zap.Int("cached_employees", len(cached)), zap.Error(fetchErr))
		summary.UsedCachedData = true
		summary.RemoteEmployees = len(cached)
		if err := s.reconcile(ctx, cached, summary); err != nil {
			return summary, err
		}
		return summary, fetchErr
	}

	summary.RemoteEmployees = len(filtered)

	// Cache the filtered roster for fallback and diagnostics
	if raw, err := json.Marshal(filtered); err == nil {
		if err := s.cache.SetTTL(ctx, rosterCacheKey, raw, rosterCacheTTL); err != nil {
			s.logger.Warn("failed to cache roster snapshot", zap.Error(err))
		}
	}

	if err := s.checkpoints.Clear(ctx); err != nil {
		return summary, err
	}

	if err := s.reconcile(ctx, filtered, summary); err != nil {
		return summary, err
	}

	s.logger.Info("employee sync completed",
		zap.Int("remote_employees", summary.RemoteEmployees),
		zap.Int("matched", summary.Matched),
		zap.Int("updated", summary.Updated),
		zap.Int("conflicts", summary.Conflicts),
		zap.Int("unmatched", summary.Unmatched))
	return summary, nil
}

// fetchRoster pages through the global roster starting from the
// checkpoint's cursor, filtering to target groups and excluding
// resigned employees. Page progress is persisted as it goes; on error
// the checkpoint is saved for the next run to resume from.
func (s *EmployeeSyncer) fetchRoster(ctx context.Context, cp *Checkpoint) ([]keka.Employee, error) {
	token, fetched, err := s.tokens.Token(ctx)
	if err != nil {
		s.save(ctx, cp)
		return nil, err
	}
	if fetched {
		if _, err := s.limiter.RecordCall(ctx, cp); err != nil {
			return nil, err
		}
		metrics.RemoteCallsTotal.WithLabelValues("token").Inc()
	}

	var filtered []keka.Employee
	page := cp.CursorPage
	totalPages := 1
	retried := false

	for page <= totalPages {
		if err := ctx.Err(); err != nil {
			cp.CursorPage = page
			s.save(ctx, cp)
			return nil, err
		}

		if _, err := s.limiter.RecordCall(ctx, cp); err != nil {
			return nil, err
		}
		metrics.RemoteCallsTotal.WithLabelValues("employees").Inc()

		result, err := s.api.EmployeesPage(ctx, token, page)
		if err != nil {
			if apperrors.Is(err, apperrors.CategoryUnauthorized) && !retried {
				s.logger.Info("credential rejected, refreshing and retrying page", zap.Int("page", page))
				retried = true
				token, err = s.tokens.Refresh(ctx)
				if err != nil {
					cp.CursorPage = page
					s.save(ctx, cp)
					return nil, err
				}
				if _, err := s.limiter.RecordCall(ctx, cp); err != nil {
					return nil, err
				}
				metrics.RemoteCallsTotal.WithLabelValues("token").Inc()
				continue // retry the same page
			}
			cp.CursorPage = page
			s.save(ctx, cp)
			return nil, err
		}

		totalPages = result.TotalPages
		for _, emp := range result.Employees {
			if s.wanted(&emp) {
				filtered = append(filtered, emp)
			}
		}

		cp.CursorPage = page
		cp.TotalEntities = totalPages
		if err := s.checkpoints.Save(ctx, cp); err != nil {
			return nil, err
		}

		s.logger.Debug("roster page fetched",
			zap.Int("page", page), zap.Int("total_pages", totalPages),
			zap.Int("kept", len(filtered)))

		page++
		if page <= totalPages {
			if err := sleepCtx(ctx, s.pageDelay); err != nil {
				cp.CursorPage = page
				s.save(ctx, cp)
				return nil, err
			}
		}
	}

	return filtered, nil
}

// wanted reports whether the employee is in a target group and has not
// resigned. Any non-nil resignation date excludes, whatever its value.
func (s *EmployeeSyncer) wanted(emp *keka.Employee) bool {
	if emp.ResignationSubmittedDate != nil {
		return false
	}
	for _, group := range emp.Groups {
		if _, ok := s.targetGroups[group.ID]; ok {
			return true
		}
	}
	return false
}

// reconcile matches every local roster row against the remote list by
// name, assigning remote identifiers and joining dates. Local rows are
// only updated, never created or deleted; an identifier held by
// another row is never reassigned.
func (s *EmployeeSyncer) reconcile(ctx context.Context, remote []keka.Employee, summary *EmployeeSummary) error {
	local, err := s.store.ListEmployees(ctx)
	if err != nil {
		return err
	}
	used, err := s.store.AssignedIdentifiers(ctx)
	if err != nil {
		return err
	}

	pending := make(map[string]struct{})

	for _, row := range local {
		// A row may re-match its own identifier, so it must not count
		// as taken while this row is being matched.
		if row.EmployeeID != "" {
			delete(used, row.EmployeeID)
		}
		match := s.matcher.FindMatch(row.Name, remote, used, pending)
		if row.EmployeeID != "" {
			used[row.EmployeeID] = struct{}{}
		}
		if match == nil {
			summary.Unmatched++
			metrics.EmployeesMatchedTotal.WithLabelValues("unmatched").Inc()
			continue
		}
		summary.Matched++
		metrics.EmployeesMatchedTotal.WithLabelValues("matched").Inc()

		joiningDate := toDate(match.DateOfJoin)

		// Defensive double check against the live set, since used is
		// snapshot-based
		if _, taken := used[match.ID]; taken && row.EmployeeID != match.ID {
			holders, _ := s.store.NamesForIdentifier(ctx, match.ID)
			s.logger.Warn("skipping assignment, identifier already held",
				zap.String("name", row.Name),
				zap.String("identifier", match.ID),
				zap.Strings("held_by", holders))
			summary.Conflicts++
			metrics.EmployeesMatchedTotal.WithLabelValues("conflict").Inc()
			continue
		}

		needsUpdate := row.EmployeeID == "" ||
			row.EmployeeID != match.ID ||
			row.JoiningDate != joiningDate
		if !needsUpdate {
			pending[match.ID] = struct{}{}
			continue
		}

		err := s.store.UpdateEmployeeIdentity(ctx, row.Name, match.ID, joiningDate)
		if err != nil {
			if apperrors.Is(err, apperrors.CategoryDataConflict) {
				holders, _ := s.store.NamesForIdentifier(ctx, match.ID)
				s.logger.Warn("duplicate identifier on update, skipping",
					zap.String("name", row.Name),
					zap.String("identifier", match.ID),
					zap.Strings("held_by", holders))
				summary.Conflicts++
				metrics.EmployeesMatchedTotal.WithLabelValues("conflict").Inc()
				continue
			}
			return err
		}

		pending[match.ID] = struct{}{}
		used[match.ID] = struct{}{}
		summary.Updated++
		metrics.EmployeesMatchedTotal.WithLabelValues("updated").Inc()

		s.logger.Info("roster row updated",
			zap.String("name", row.Name),
			zap.String("identifier", match.ID),
			zap.String("joining_date", joiningDate))
	}

	return nil
}

// cachedRoster returns the last durably cached filtered roster.
func (s *EmployeeSyncer) cachedRoster(ctx context.Context) ([]keka.Employee, error) {
	raw, err := s.cache.Get(ctx, rosterCacheKey)
	if err != nil {
		return nil, err
	}
	var employees []keka.Employee
	if err := json.Unmarshal(raw, &employees); err != nil {
		return nil, err
	}
	return employees, nil
}

// Status reports the current checkpoint without mutating it.
func (s *EmployeeSyncer) Status(ctx context.Context) (*Status, error) {
	return checkpointStatus(ctx, s.checkpoints, s.limiter.quota, s.now)
}

func (s *EmployeeSyncer) save(ctx context.Context, cp *Checkpoint) {
	if err := s.checkpoints.Save(ctx, cp); err != nil {
		s.logger.Error("failed to save checkpoint", zap.Error(err))
	}
}

// toDate truncates a remote timestamp ("2014-06-01T00:00:00Z") to its
// date part, validating the result.
func toDate(remote string) string {
	if remote == "" {
		return ""
	}
	day := strings.SplitN(remote, "T", 2)[0]
	if _, err := time.Parse(dateLayout, day); err != nil {
		return ""
	}
	return day
}
