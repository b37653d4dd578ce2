package models

import (
	"time"
)

// SubmissionState describes where an assignment stands for the current user.
type SubmissionState string

const (
	SubmissionAvailable SubmissionState = "available"
	SubmissionSubmitted SubmissionState = "submitted"
	SubmissionOverdue   SubmissionState = "overdue"
)

// Assignment is the engine's view of a remote assignment. Instances are
// replaced wholesale on each refresh of their scope; the only field mutated
// locally is the Unread flag.
type Assignment struct {
	ID         int64           `json:"id"`
	CourseID   int64           `json:"course_id"`
	Title      string          `json:"title"`
	CourseName string          `json:"course_name,omitempty"`
	DueAt      time.Time       `json:"due_at"`
	Submission SubmissionState `json:"submission_state"`
	Unread     bool            `json:"unread"`
}

// HasDueDate reports whether the assignment carries a due timestamp.
// Assignments without one are never calendar-eligible.
func (a *Assignment) HasDueDate() bool {
	return !a.DueAt.IsZero()
}

// IsDueSoon reports whether the assignment is due within the given window
// from now, and not yet past due.
func (a *Assignment) IsDueSoon(now time.Time, window time.Duration) bool {
	if !a.HasDueDate() || a.DueAt.Before(now) {
		return false
	}
	return a.DueAt.Sub(now) <= window
}

// IsOverdue reports whether the due timestamp has passed without a
// submission.
func (a *Assignment) IsOverdue(now time.Time) bool {
	return a.HasDueDate() && a.DueAt.Before(now) && a.Submission != SubmissionSubmitted
}
