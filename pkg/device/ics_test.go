package device

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/edusync/assignsync/internal/models"
)

func newTestCalendar(t *testing.T) *ICSCalendar {
	t.Helper()
	cal, err := NewICSCalendar(filepath.Join(t.TempDir(), "assignments.ics"), "test", slog.Default())
	if err != nil {
		t.Fatalf("Failed to create calendar: %v", err)
	}
	return cal
}

func testEvent() *models.CalendarEvent {
	start := time.Date(2025, 3, 12, 17, 0, 0, 0, time.UTC)
	return &models.CalendarEvent{
		AssignmentID: 101,
		CourseID:     1,
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
		Title:        "Essay due",
		Description:  "History 101",
	}
}

func TestCreateEventAssignsID(t *testing.T) {
	cal := newTestCalendar(t)
	ctx := context.Background()

	id, err := cal.CreateEvent(ctx, testEvent())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected a generated event id")
	}

	events, err := cal.Events(ctx)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}

	got := events[0]
	if got.ID != id {
		t.Errorf("Expected id %s, got %s", id, got.ID)
	}
	if got.AssignmentID != 101 || got.CourseID != 1 {
		t.Errorf("Back-reference lost on round trip: %+v", got)
	}
	if !got.StartTime.Equal(testEvent().StartTime) {
		t.Errorf("Start time changed on round trip: %v", got.StartTime)
	}
	if got.Title != "Essay due" {
		t.Errorf("Unexpected title: %s", got.Title)
	}
}

func TestUpdateEvent(t *testing.T) {
	cal := newTestCalendar(t)
	ctx := context.Background()

	event := testEvent()
	id, err := cal.CreateEvent(ctx, event)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	event.ID = id
	event.Title = "Essay due (extended)"
	event.StartTime = event.StartTime.Add(48 * time.Hour)
	event.EndTime = event.EndTime.Add(48 * time.Hour)
	if err := cal.UpdateEvent(ctx, event); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	events, _ := cal.Events(ctx)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event after update, got %d", len(events))
	}
	if events[0].Title != "Essay due (extended)" {
		t.Errorf("Title not updated: %s", events[0].Title)
	}
	if !events[0].StartTime.Equal(event.StartTime) {
		t.Errorf("Start time not updated: %v", events[0].StartTime)
	}
}

func TestUpdateMissingEventReturnsNotFound(t *testing.T) {
	cal := newTestCalendar(t)

	event := testEvent()
	event.ID = "missing"
	err := cal.UpdateEvent(context.Background(), event)

	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("Expected *WriteError, got %T", err)
	}
	if writeErr.Kind != WriteFailureNotFound {
		t.Errorf("Expected not_found kind, got %s", writeErr.Kind)
	}
}

func TestDeleteEvent(t *testing.T) {
	cal := newTestCalendar(t)
	ctx := context.Background()

	id, err := cal.CreateEvent(ctx, testEvent())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := cal.DeleteEvent(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	events, _ := cal.Events(ctx)
	if len(events) != 0 {
		t.Errorf("Expected empty calendar after delete, got %d events", len(events))
	}

	err = cal.DeleteEvent(ctx, id)
	var writeErr *WriteError
	if !errors.As(err, &writeErr) || writeErr.Kind != WriteFailureNotFound {
		t.Errorf("Expected not_found for double delete, got %v", err)
	}
}

func TestQueryPermissionOnWritablePath(t *testing.T) {
	cal := newTestCalendar(t)

	status, err := cal.QueryPermission(context.Background())
	if err != nil {
		t.Fatalf("QueryPermission failed: %v", err)
	}
	if status != models.PermissionGranted {
		t.Errorf("Expected granted on writable temp dir, got %s", status)
	}
}

func TestFactoryCreatesICSCalendar(t *testing.T) {
	factory := DefaultFactory()

	cal, err := factory.Create("ics", &Config{Path: filepath.Join(t.TempDir(), "a.ics")})
	if err != nil {
		t.Fatalf("Factory create failed: %v", err)
	}
	if _, ok := cal.(*ICSCalendar); !ok {
		t.Errorf("Expected *ICSCalendar, got %T", cal)
	}

	if _, err := factory.Create("carddav", nil); err == nil {
		t.Error("Expected error for unsupported calendar type")
	}
}
