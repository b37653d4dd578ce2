package models

import (
	"time"
)

// PermissionStatus enumerates the device-calendar permission states.
type PermissionStatus int

const (
	PermissionUnknown PermissionStatus = iota
	PermissionGranted
	PermissionDenied
	PermissionRestricted
	PermissionPermanentlyDenied
)

func (p PermissionStatus) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	case PermissionRestricted:
		return "restricted"
	case PermissionPermanentlyDenied:
		return "permanently_denied"
	default:
		return "unknown"
	}
}

// SyncMode identifies which coordinator entry point produced a result.
type SyncMode string

const (
	SyncModeFull        SyncMode = "full"
	SyncModeIncremental SyncMode = "incremental"
)

// CacheStatus is a read-only staleness snapshot for one cache scope.
type CacheStatus struct {
	LastFetch  time.Time `json:"last_fetch"`
	Count      int       `json:"count"`
	Stale      bool      `json:"stale"`
	Refreshing bool      `json:"refreshing"`
}

// SyncResult is the outcome of a single sync run. It is constructed once per
// run, after every attempted operation has drained, and never mutated after
// being returned.
type SyncResult struct {
	Mode      SyncMode      `json:"mode"`
	Scope     Scope         `json:"scope"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Deleted   int           `json:"deleted"`
	Skipped   int           `json:"skipped"`
	Errors    []string      `json:"errors,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// TotalChanges returns the number of device-side changes the run made.
func (r *SyncResult) TotalChanges() int {
	return r.Created + r.Updated + r.Deleted
}

// HasErrors reports whether any individual operation failed during the run.
func (r *SyncResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// SyncSettings is the user-controlled sync configuration. Instances are
// treated as values: updates replace the whole struct atomically.
type SyncSettings struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	CourseIDs        []int64       `yaml:"course_ids" json:"course_ids,omitempty"`
	ReminderLead     time.Duration `yaml:"reminder_lead" json:"reminder_lead"`
	SyncToDevice     bool          `yaml:"sync_to_device" json:"sync_to_device"`
	DeviceCalendarID string        `yaml:"device_calendar_id" json:"device_calendar_id,omitempty"`
	AutoSync         bool          `yaml:"auto_sync" json:"auto_sync"`
	AutoSyncInterval time.Duration `yaml:"auto_sync_interval" json:"auto_sync_interval"`
}

// DefaultSyncSettings returns the settings used before the user has saved
// any: sync enabled for all courses, device writes off until opted in.
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{
		Enabled:          true,
		ReminderLead:     30 * time.Minute,
		AutoSyncInterval: 15 * time.Minute,
	}
}

// CourseEnabled reports whether a course participates in sync. An empty
// course list means every course is opted in.
func (s SyncSettings) CourseEnabled(courseID int64) bool {
	if !s.Enabled {
		return false
	}
	if len(s.CourseIDs) == 0 {
		return true
	}
	for _, id := range s.CourseIDs {
		if id == courseID {
			return true
		}
	}
	return false
}
