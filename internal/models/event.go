package models

import (
	"time"
)

// CalendarEvent is the engine's view of a calendar event. Once written to a
// device calendar, the device owns the id; events the engine creates locally
// carry generated ids until then.
type CalendarEvent struct {
	ID           string    `json:"id"`
	AssignmentID int64     `json:"assignment_id,omitempty"`
	CourseID     int64     `json:"course_id,omitempty"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
}

// HasAssignment reports whether the event carries a back-reference to an
// originating assignment. Events without one were created outside the sync
// engine and are never touched by reconciliation.
func (e *CalendarEvent) HasAssignment() bool {
	return e.AssignmentID != 0
}

// IsOrphanWithin reports whether the event's originating assignment is
// missing from the given assignment set, considering only events whose
// course falls inside the scope. Out-of-scope events are never orphans.
func (e *CalendarEvent) IsOrphanWithin(scope Scope, assignments map[int64]Assignment) bool {
	if !e.HasAssignment() || !scope.Contains(e.CourseID) {
		return false
	}
	_, ok := assignments[e.AssignmentID]
	return !ok
}

// Matches reports whether the event's derivable fields already agree with
// the desired event. Only start time and title participate; everything else
// is advisory and never triggers an update on its own.
func (e *CalendarEvent) Matches(want *CalendarEvent) bool {
	return e.StartTime.Equal(want.StartTime) && e.Title == want.Title
}
