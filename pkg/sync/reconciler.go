package sync

import (
	"fmt"
	"time"

	"github.com/edusync/assignsync/internal/models"
)

// eventDuration is how long a due-date event blocks on the calendar.
const eventDuration = time.Hour

// Delta is the set of device-calendar operations that would bring the
// calendar in line with the current assignment set. Deletions carry the full
// recorded event so callers can clean up their own records too.
type Delta struct {
	ToCreate []models.CalendarEvent
	ToUpdate []models.CalendarEvent
	ToDelete []models.CalendarEvent
}

// Empty reports whether the delta contains no operations.
func (d *Delta) Empty() bool {
	return len(d.ToCreate) == 0 && len(d.ToUpdate) == 0 && len(d.ToDelete) == 0
}

// Size returns the total number of operations in the delta.
func (d *Delta) Size() int {
	return len(d.ToCreate) + len(d.ToUpdate) + len(d.ToDelete)
}

// EventForAssignment derives the calendar event an assignment should have:
// the event starts at the due time and blocks an hour.
func EventForAssignment(a models.Assignment) models.CalendarEvent {
	description := a.CourseName
	if a.Submission != "" {
		if description != "" {
			description += " · "
		}
		description += fmt.Sprintf("status: %s", a.Submission)
	}

	return models.CalendarEvent{
		AssignmentID: a.ID,
		CourseID:     a.CourseID,
		StartTime:    a.DueAt,
		EndTime:      a.DueAt.Add(eventDuration),
		Title:        a.Title,
		Description:  description,
	}
}

// Reconcile computes the delta between the authoritative assignment set and
// the recorded calendar events for one scope.
//
// An assignment is calendar-eligible when it has a due date and its course is
// enabled in the settings. Eligible assignments without a recorded event are
// created; recorded events whose due time or title drifted are updated.
//
// Orphan detection is bounded by the scope: only events whose course falls
// inside the scope can be deleted, so a single-course sync never touches
// another course's events. Events with no assignment back-reference were
// created by the user and are never touched. Assignments excluded by the
// settings are not scope-excluded, so their events orphan and delete.
func Reconcile(assignments []models.Assignment, events []models.CalendarEvent, scope models.Scope, settings models.SyncSettings) Delta {
	eligible := make(map[int64]models.Assignment, len(assignments))
	for _, a := range assignments {
		if a.HasDueDate() && settings.CourseEnabled(a.CourseID) {
			eligible[a.ID] = a
		}
	}

	var delta Delta

	byAssignment := make(map[int64]models.CalendarEvent)
	for _, e := range events {
		if !e.HasAssignment() || !scope.Contains(e.CourseID) {
			continue
		}
		if _, dup := byAssignment[e.AssignmentID]; dup {
			// A duplicate event for the same assignment; keep the first,
			// reap the rest.
			delta.ToDelete = append(delta.ToDelete, e)
			continue
		}
		byAssignment[e.AssignmentID] = e
	}

	for _, a := range assignments {
		if _, ok := eligible[a.ID]; !ok {
			continue
		}
		want := EventForAssignment(a)

		existing, ok := byAssignment[a.ID]
		if !ok {
			delta.ToCreate = append(delta.ToCreate, want)
			continue
		}
		if !existing.Matches(&want) {
			want.ID = existing.ID
			delta.ToUpdate = append(delta.ToUpdate, want)
		}
	}

	for _, e := range events {
		if e.IsOrphanWithin(scope, eligible) {
			if claimed, ok := byAssignment[e.AssignmentID]; !ok || claimed.ID == e.ID {
				delta.ToDelete = append(delta.ToDelete, e)
			}
		}
	}

	return delta
}
