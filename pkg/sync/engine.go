// Package sync contains the heart of the engine: the permission and settings
// gate, the reconciler that turns assignment sets into calendar deltas, the
// coordinator that runs syncs, and the Engine facade callers talk to.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"

	"github.com/edusync/assignsync/internal/models"
	"github.com/edusync/assignsync/pkg/cache"
	"github.com/edusync/assignsync/pkg/state"
)

// Engine is the single entry point for callers: assignment reads, sync runs,
// permission handling, and settings all go through it.
type Engine struct {
	cache       *cache.Store[models.Assignment]
	state       *state.Store
	coordinator *Coordinator
	gate        *Gate
	logger      *slog.Logger

	// read tracks assignments the user has opened. The remote source has no
	// write surface for this, so the flag lives locally and overlays reads.
	readMu gosync.Mutex
	read   map[int64]bool
}

// NewEngine assembles the facade over an already-wired coordinator.
func NewEngine(assignmentCache *cache.Store[models.Assignment], stateStore *state.Store, coordinator *Coordinator, gate *Gate, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cache:       assignmentCache,
		state:       stateStore,
		coordinator: coordinator,
		gate:        gate,
		logger:      logger,
		read:        make(map[int64]bool),
	}
}

// GetEntities returns the scope's assignments plus a cache staleness
// snapshot, fetching from the remote source when the cache has expired or
// forceRefresh is set.
func (e *Engine) GetEntities(ctx context.Context, scope models.Scope, forceRefresh bool) ([]models.Assignment, models.CacheStatus, error) {
	assignments, status, err := e.cache.Get(ctx, scope, forceRefresh)
	if err != nil {
		return nil, status, err
	}

	e.readMu.Lock()
	for i := range assignments {
		if e.read[assignments[i].ID] {
			assignments[i].Unread = false
		}
	}
	e.readMu.Unlock()

	return assignments, status, nil
}

// PerformFullSync runs a full sync for the scope.
func (e *Engine) PerformFullSync(ctx context.Context, scope models.Scope) (*models.SyncResult, error) {
	return e.coordinator.FullSync(ctx, scope)
}

// PerformIncrementalSync runs an incremental sync for the scope.
func (e *Engine) PerformIncrementalSync(ctx context.Context, scope models.Scope) (*models.SyncResult, error) {
	return e.coordinator.IncrementalSync(ctx, scope)
}

// GetEntitiesNeedingSync returns the eligible assignments whose recorded
// event is missing or has drifted, without touching the device calendar.
func (e *Engine) GetEntitiesNeedingSync(ctx context.Context, scope models.Scope) ([]models.Assignment, error) {
	assignments, _, err := e.cache.Get(ctx, scope, false)
	if err != nil {
		return nil, err
	}
	recorded, err := e.state.Events(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load recorded events: %w", err)
	}

	delta := Reconcile(assignments, recorded, scope, e.gate.Settings())

	pending := make(map[int64]bool, len(delta.ToCreate)+len(delta.ToUpdate))
	for _, event := range delta.ToCreate {
		pending[event.AssignmentID] = true
	}
	for _, event := range delta.ToUpdate {
		pending[event.AssignmentID] = true
	}

	var needing []models.Assignment
	for _, a := range assignments {
		if pending[a.ID] {
			needing = append(needing, a)
		}
	}
	return needing, nil
}

// GetOrphanedEvents returns the recorded events a sync of this scope would
// delete: events whose originating assignment no longer exists or is no
// longer eligible.
func (e *Engine) GetOrphanedEvents(ctx context.Context, scope models.Scope) ([]models.CalendarEvent, error) {
	assignments, _, err := e.cache.Get(ctx, scope, false)
	if err != nil {
		return nil, err
	}
	recorded, err := e.state.Events(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load recorded events: %w", err)
	}

	delta := Reconcile(assignments, recorded, scope, e.gate.Settings())
	return delta.ToDelete, nil
}

// ClearCache evicts the scope's cached assignments.
func (e *Engine) ClearCache(scope models.Scope) {
	e.cache.Clear(scope)
}

// GetCacheStatus returns the scope's cache staleness snapshot.
func (e *Engine) GetCacheStatus(scope models.Scope) models.CacheStatus {
	return e.cache.Status(scope)
}

// CheckPermission reports the device-calendar permission state without
// prompting.
func (e *Engine) CheckPermission(ctx context.Context) (models.PermissionStatus, error) {
	return e.gate.CheckPermission(ctx)
}

// RequestPermission prompts the platform for device-calendar access.
func (e *Engine) RequestPermission(ctx context.Context) (models.PermissionStatus, error) {
	return e.gate.RequestPermission(ctx)
}

// GetSettings returns the current sync settings.
func (e *Engine) GetSettings() models.SyncSettings {
	return e.gate.Settings()
}

// UpdateSettings persists and applies new sync settings.
func (e *Engine) UpdateSettings(updated models.SyncSettings) error {
	return e.gate.UpdateSettings(updated)
}

// MarkRead flags an assignment as read. The flag is local; it survives cache
// refreshes but not process restarts.
func (e *Engine) MarkRead(assignmentID int64) {
	e.readMu.Lock()
	e.read[assignmentID] = true
	e.readMu.Unlock()
}
