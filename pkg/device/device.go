// Package device defines the contract for the device calendar that synced
// events are written to, along with built-in implementations.
package device

import (
	"context"
	"fmt"

	"github.com/edusync/assignsync/internal/models"
)

// Calendar is the device-calendar write surface. Every write path in the
// engine consults the permission gate before calling into it.
type Calendar interface {
	// CreateEvent writes a new event and returns the id the calendar
	// assigned to it.
	CreateEvent(ctx context.Context, event *models.CalendarEvent) (string, error)

	// UpdateEvent rewrites an existing event in place, addressed by id.
	UpdateEvent(ctx context.Context, event *models.CalendarEvent) error

	// DeleteEvent removes an event by id.
	DeleteEvent(ctx context.Context, eventID string) error

	// QueryPermission reports the current write-permission state without
	// prompting.
	QueryPermission(ctx context.Context) (models.PermissionStatus, error)

	// RequestPermission asks the platform for write access and returns the
	// resulting state.
	RequestPermission(ctx context.Context) (models.PermissionStatus, error)
}

// WriteFailureKind classifies device write failures.
type WriteFailureKind string

const (
	WriteFailurePermission WriteFailureKind = "permission"
	WriteFailureNotFound   WriteFailureKind = "not_found"
	WriteFailurePlatform   WriteFailureKind = "platform"
)

// WriteError is a classified device write failure. Sync runs record these
// per item and keep going.
type WriteError struct {
	Kind    WriteFailureKind
	EventID string
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("device write (%s, event %s): %v", e.Kind, e.EventID, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
