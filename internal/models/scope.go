package models

import (
	"fmt"
)

// Scope identifies the entity subset a cache or sync operation applies to:
// either every assignment visible to the user, or a single course's.
type Scope struct {
	CourseID int64 `json:"course_id,omitempty"`
}

// ScopeAll covers every assignment visible to the user.
var ScopeAll = Scope{}

// CourseScope returns a scope restricted to one course.
func CourseScope(courseID int64) Scope {
	return Scope{CourseID: courseID}
}

// IsAll reports whether the scope covers all courses.
func (s Scope) IsAll() bool {
	return s.CourseID == 0
}

// Contains reports whether an entity belonging to courseID falls inside this
// scope. Orphan detection is bounded by this check so that partial syncs
// never delete events belonging to other courses.
func (s Scope) Contains(courseID int64) bool {
	return s.IsAll() || s.CourseID == courseID
}

// Key returns a stable string form used for map and database keying.
func (s Scope) Key() string {
	if s.IsAll() {
		return "all"
	}
	return fmt.Sprintf("course-%d", s.CourseID)
}

func (s Scope) String() string {
	return s.Key()
}
