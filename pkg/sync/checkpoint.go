// Package sync implements the resumable, rate-limited crawlers that
// pull attendance and employee data from the Keka HR API into the
// local store. Each engine owns a durable checkpoint so an interrupted
// run resumes where it stopped instead of starting over.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sequoiaprint/keka-integrations/pkg/kvcache"
)

// Durable cache keys shared by the sync engines.
const (
	attendanceCheckpointKey = "attendance_rate_limit_state"
	employeeCheckpointKey   = "employee_rate_limit_state"
	employeeIDsCacheKey     = "attendance_employee_ids_cache"
	rosterCacheKey          = "keka_employees_data"
)

const checkpointSchemaVersion = 1

// Checkpoint is the durable progress record of one sync engine. It
// carries both the rate-limit window accounting and the crawl cursor,
// and is persisted after every remote call and every completed page.
type Checkpoint struct {
	SchemaVersion     int       `json:"schemaVersion"`
	CallCount         int       `json:"count"`
	WindowStart       time.Time `json:"windowStart"`
	CursorEntityIndex int       `json:"cursorEntityIndex"`
	CursorPage        int       `json:"cursorPage"`
	TotalEntities     int       `json:"totalEntities"`
	CurrentEntityID   string    `json:"currentEntityId"`
	EntityIDSnapshot  []string  `json:"entityIdSnapshot,omitempty"`
	Paused            bool      `json:"paused"`
}

// CheckpointStore loads and saves one engine's checkpoint in the
// durable cache under a fixed key.
type CheckpointStore struct {
	key    string
	cache  kvcache.Store
	window time.Duration
	logger *zap.Logger

	// now is swappable in tests
	now func() time.Time
}

// NewCheckpointStore creates a store for the checkpoint under key.
// window is the rate-limit window used for lazy count resets on load.
func NewCheckpointStore(cache kvcache.Store, key string, window time.Duration, logger *zap.Logger) *CheckpointStore {
	return &CheckpointStore{
		key:    key,
		cache:  cache,
		window: window,
		logger: logger.Named("checkpoint"),
		now:    time.Now,
	}
}

func (s *CheckpointStore) fresh() *Checkpoint {
	return &Checkpoint{
		SchemaVersion: checkpointSchemaVersion,
		WindowStart:   s.now(),
		CursorPage:    1,
	}
}

// Load returns the stored checkpoint, or a fresh one when absent or
// unreadable. A checkpoint whose rate window has elapsed gets its call
// count reset; a stale paused flag is cleared without re-sleeping,
// since the pause was already served before the process stopped.
func (s *CheckpointStore) Load(ctx context.Context) (*Checkpoint, error) {
	raw, err := s.cache.Get(ctx, s.key)
	if errors.Is(err, kvcache.ErrNotFound) {
		return s.fresh(), nil
	}
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		s.logger.Warn("corrupt checkpoint replaced with fresh state",
			zap.String("key", s.key), zap.Error(err))
		return s.fresh(), nil
	}
	if cp.SchemaVersion != checkpointSchemaVersion {
		s.logger.Warn("checkpoint schema mismatch, starting fresh",
			zap.String("key", s.key), zap.Int("found", cp.SchemaVersion))
		return s.fresh(), nil
	}

	now := s.now()
	if now.Sub(cp.WindowStart) > s.window {
		cp.CallCount = 0
		cp.WindowStart = now
		cp.Paused = false
	} else if cp.Paused {
		cp.CallCount = 0
		cp.WindowStart = now
		cp.Paused = false
		s.logger.Info("resuming from previous rate-limit pause", zap.String("key", s.key))
	}

	if cp.CursorPage < 1 {
		cp.CursorPage = 1
	}

	return &cp, nil
}

// Peek returns the stored checkpoint without the lazy resets Load
// applies, for status reporting. Returns nil when no checkpoint exists.
func (s *CheckpointStore) Peek(ctx context.Context) (*Checkpoint, error) {
	raw, err := s.cache.Get(ctx, s.key)
	if errors.Is(err, kvcache.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, nil
	}
	return &cp, nil
}

// Save persists the checkpoint.
func (s *CheckpointStore) Save(ctx context.Context, cp *Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.key, raw)
}

// Clear deletes the checkpoint. Called only after a fully completed run.
func (s *CheckpointStore) Clear(ctx context.Context) error {
	return s.cache.Delete(ctx, s.key)
}

// Window returns the configured rate-limit window.
func (s *CheckpointStore) Window() time.Duration {
	return s.window
}
