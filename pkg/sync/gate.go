package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"

	"github.com/edusync/assignsync/internal/models"
	"github.com/edusync/assignsync/pkg/device"
	"github.com/edusync/assignsync/pkg/settings"
)

// maxConsecutiveDenials is how many denied permission requests in a row are
// tolerated before the gate stops asking the platform again.
const maxConsecutiveDenials = 2

// Gate holds the device-calendar permission state and the user's sync
// settings. Every device write path consults it before touching the calendar.
//
// Permission moves through a one-way ratchet: unknown until first queried,
// then granted, denied, or restricted as the platform reports; repeated
// denials harden into permanently-denied, which only an out-of-band platform
// change can undo.
type Gate struct {
	calendar device.Calendar
	store    settings.Store
	logger   *slog.Logger

	mu       gosync.Mutex
	status   models.PermissionStatus
	denials  int
	settings models.SyncSettings
}

// NewGate creates a gate around the calendar adapter, loading the persisted
// settings. Permission starts unknown until first checked.
func NewGate(calendar device.Calendar, store settings.Store, logger *slog.Logger) (*Gate, error) {
	if logger == nil {
		logger = slog.Default()
	}

	loaded, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load sync settings: %w", err)
	}

	return &Gate{
		calendar: calendar,
		store:    store,
		logger:   logger,
		status:   models.PermissionUnknown,
		settings: loaded,
	}, nil
}

// CheckPermission returns the current permission state, querying the platform
// once to resolve an unknown state. It never prompts the user.
func (g *Gate) CheckPermission(ctx context.Context) (models.PermissionStatus, error) {
	g.mu.Lock()
	if g.status != models.PermissionUnknown {
		status := g.status
		g.mu.Unlock()
		return status, nil
	}
	g.mu.Unlock()

	status, err := g.calendar.QueryPermission(ctx)
	if err != nil {
		return models.PermissionUnknown, fmt.Errorf("failed to query calendar permission: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status == models.PermissionUnknown {
		g.status = status
		g.logger.Debug("Calendar permission resolved", "status", status)
	}
	return g.status, nil
}

// RequestPermission prompts the platform for calendar access and applies the
// resulting transition. Once permanently denied, the platform is not asked
// again; the cached state is returned instead.
func (g *Gate) RequestPermission(ctx context.Context) (models.PermissionStatus, error) {
	g.mu.Lock()
	if g.status == models.PermissionPermanentlyDenied {
		g.mu.Unlock()
		g.logger.Debug("Permission permanently denied, skipping platform request")
		return models.PermissionPermanentlyDenied, nil
	}
	g.mu.Unlock()

	status, err := g.calendar.RequestPermission(ctx)
	if err != nil {
		return models.PermissionUnknown, fmt.Errorf("failed to request calendar permission: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	switch status {
	case models.PermissionGranted:
		g.denials = 0
		g.status = models.PermissionGranted
	case models.PermissionDenied:
		g.denials++
		if g.denials >= maxConsecutiveDenials {
			g.status = models.PermissionPermanentlyDenied
			g.logger.Warn("Calendar permission denied repeatedly, treating as permanent",
				"denials", g.denials)
		} else {
			g.status = models.PermissionDenied
		}
	case models.PermissionPermanentlyDenied:
		g.status = models.PermissionPermanentlyDenied
	case models.PermissionRestricted:
		g.status = models.PermissionRestricted
	}

	g.logger.Info("Calendar permission requested", "status", g.status)
	return g.status, nil
}

// Allows reports whether device writes may proceed right now: permission
// granted and device sync switched on in the settings.
func (g *Gate) Allows(ctx context.Context) bool {
	status, err := g.CheckPermission(ctx)
	if err != nil {
		g.logger.Warn("Permission check failed, blocking device writes", "error", err)
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return status == models.PermissionGranted && g.settings.SyncToDevice
}

// Settings returns the current settings value.
func (g *Gate) Settings() models.SyncSettings {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.settings
}

// UpdateSettings persists new settings and swaps them in atomically. The
// in-memory settings are untouched when persistence fails.
func (g *Gate) UpdateSettings(updated models.SyncSettings) error {
	if err := g.store.Save(updated); err != nil {
		return fmt.Errorf("failed to persist sync settings: %w", err)
	}

	g.mu.Lock()
	g.settings = updated
	g.mu.Unlock()

	g.logger.Info("Sync settings updated",
		"enabled", updated.Enabled,
		"sync_to_device", updated.SyncToDevice,
		"courses", len(updated.CourseIDs))
	return nil
}
