package sync

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/edusync/assignsync/internal/models"
	"github.com/edusync/assignsync/pkg/cache"
	"github.com/edusync/assignsync/pkg/device"
	"github.com/edusync/assignsync/pkg/state"
)

// Coordinator drives sync runs: it fetches the assignment set, reconciles it
// against the recorded events, and applies the delta to the device calendar
// through the permission gate.
//
// One run per scope at a time; a second request for a busy scope fails
// immediately with ErrSyncInProgress. Adapter failures inside a run become
// result data, never returned errors: callers always get a completed
// SyncResult describing what happened.
type Coordinator struct {
	cache    *cache.Store[models.Assignment]
	state    *state.Store
	calendar device.Calendar
	gate     *Gate
	logger   *slog.Logger

	mu      gosync.Mutex
	running map[string]bool
}

// NewCoordinator creates a coordinator over the given stores and adapters.
func NewCoordinator(assignmentCache *cache.Store[models.Assignment], stateStore *state.Store, calendar device.Calendar, gate *Gate, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		cache:    assignmentCache,
		state:    stateStore,
		calendar: calendar,
		gate:     gate,
		logger:   logger,
		running:  make(map[string]bool),
	}
}

// FullSync refreshes the scope's assignments from the remote source and
// reconciles the device calendar against the result.
func (c *Coordinator) FullSync(ctx context.Context, scope models.Scope) (*models.SyncResult, error) {
	return c.run(ctx, scope, models.SyncModeFull, true)
}

// IncrementalSync reconciles against the cached assignment set, fetching only
// when the cache has expired. Stale data is acceptable here; a full sync is
// the way to force freshness.
func (c *Coordinator) IncrementalSync(ctx context.Context, scope models.Scope) (*models.SyncResult, error) {
	return c.run(ctx, scope, models.SyncModeIncremental, false)
}

func (c *Coordinator) tryAcquire(scope models.Scope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running[scope.Key()] {
		return false
	}
	c.running[scope.Key()] = true
	return true
}

func (c *Coordinator) release(scope models.Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.running, scope.Key())
}

func (c *Coordinator) run(ctx context.Context, scope models.Scope, mode models.SyncMode, forceRefresh bool) (*models.SyncResult, error) {
	if !c.tryAcquire(scope) {
		c.logger.Debug("Sync rejected, scope busy", "scope", scope.Key(), "mode", mode)
		return nil, ErrSyncInProgress
	}
	defer c.release(scope)

	started := time.Now()
	result := &models.SyncResult{
		Mode:      mode,
		Scope:     scope,
		StartedAt: started,
	}
	defer func() {
		result.Duration = time.Since(started)
	}()

	c.logger.Info("Sync started", "scope", scope.Key(), "mode", mode)

	assignments, status, err := c.cache.Get(ctx, scope, forceRefresh)
	if err != nil {
		// No data at all, not even stale; nothing to reconcile against.
		result.Errors = append(result.Errors, err.Error())
		c.logger.Warn("Sync aborted, no assignment data", "scope", scope.Key(), "error", err)
		return result, nil
	}
	if status.Stale {
		c.logger.Warn("Syncing against stale assignment data",
			"scope", scope.Key(),
			"last_fetch", status.LastFetch)
	}

	recorded, err := c.state.Events(ctx, scope)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}

	settings := c.gate.Settings()
	delta := Reconcile(assignments, recorded, scope, settings)

	if delta.Empty() {
		c.logger.Info("Sync complete, nothing to do", "scope", scope.Key(), "mode", mode)
	} else if !c.gate.Allows(ctx) {
		// Permission or settings block device writes; the run still
		// completes, with every pending operation counted as skipped.
		result.Skipped = delta.Size()
		c.logger.Info("Device writes blocked, skipping delta",
			"scope", scope.Key(),
			"skipped", result.Skipped)
	} else {
		c.apply(ctx, &delta, result)
		c.logger.Info("Sync complete",
			"scope", scope.Key(),
			"mode", mode,
			"created", result.Created,
			"updated", result.Updated,
			"deleted", result.Deleted,
			"errors", len(result.Errors))
	}

	if !status.Stale {
		if err := c.state.SetWatermark(ctx, scope, started); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	return result, nil
}

// apply executes every operation in the delta, recording per-item failures
// and continuing. The run drains fully; a failed create never stops a
// pending delete.
func (c *Coordinator) apply(ctx context.Context, delta *Delta, result *models.SyncResult) {
	for _, event := range delta.ToCreate {
		id, err := c.calendar.CreateEvent(ctx, &event)
		if err != nil {
			if isPermissionDenied(err) {
				result.Skipped++
				continue
			}
			result.Errors = append(result.Errors, err.Error())
			c.logger.Warn("Event create failed", "assignment_id", event.AssignmentID, "error", err)
			continue
		}
		event.ID = id
		if err := c.state.PutEvent(ctx, event); err != nil {
			// An unrecorded device event is invisible to reconciliation and
			// would duplicate on the next run; roll the create back.
			if delErr := c.calendar.DeleteEvent(ctx, id); delErr != nil && !isNotFound(delErr) {
				c.logger.Warn("Event rollback failed", "event_id", id, "error", delErr)
			}
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Created++
	}

	for _, event := range delta.ToUpdate {
		if err := c.calendar.UpdateEvent(ctx, &event); err != nil {
			if isPermissionDenied(err) {
				result.Skipped++
				continue
			}
			result.Errors = append(result.Errors, err.Error())
			c.logger.Warn("Event update failed", "event_id", event.ID, "error", err)
			continue
		}
		if err := c.state.PutEvent(ctx, event); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Updated++
	}

	for _, event := range delta.ToDelete {
		if err := c.calendar.DeleteEvent(ctx, event.ID); err != nil && !isNotFound(err) {
			if isPermissionDenied(err) {
				result.Skipped++
				continue
			}
			result.Errors = append(result.Errors, err.Error())
			c.logger.Warn("Event delete failed", "event_id", event.ID, "error", err)
			continue
		}
		if err := c.state.DeleteEvent(ctx, event.ID); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Deleted++
	}
}

// isNotFound reports whether a device write failed because the event is
// already gone, which a delete treats as success.
func isNotFound(err error) bool {
	var writeErr *device.WriteError
	return errors.As(err, &writeErr) && writeErr.Kind == device.WriteFailureNotFound
}

// isPermissionDenied reports whether a device write was refused by the
// platform. Permission blocks discovered mid-run count as skipped work, the
// same as a run that never started writing.
func isPermissionDenied(err error) bool {
	var writeErr *device.WriteError
	return errors.As(err, &writeErr) && writeErr.Kind == device.WriteFailurePermission
}
