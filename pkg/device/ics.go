package device

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/edusync/assignsync/internal/models"
)

const (
	propAssignmentID = "X-ASSIGNSYNC-ASSIGNMENT-ID"
	propCourseID     = "X-ASSIGNSYNC-COURSE-ID"
)

// ICSCalendar stores events as VEVENTs in a local iCalendar file. It stands
// in for a platform calendar on hosts without one and doubles as an export
// target other calendar apps can subscribe to.
type ICSCalendar struct {
	path       string
	calendarID string
	logger     *slog.Logger

	mu sync.Mutex
}

// NewICSCalendar creates a calendar backed by the iCalendar file at path.
// The file is created on first write.
func NewICSCalendar(path, calendarID string, logger *slog.Logger) (*ICSCalendar, error) {
	if path == "" {
		return nil, fmt.Errorf("ics calendar path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if calendarID == "" {
		calendarID = "assignments"
	}

	return &ICSCalendar{
		path:       path,
		calendarID: calendarID,
		logger:     logger,
	}, nil
}

// CreateEvent writes a new event and returns its id.
func (c *ICSCalendar) CreateEvent(ctx context.Context, event *models.CalendarEvent) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	events, err := c.load()
	if err != nil {
		return "", &WriteError{Kind: WriteFailurePlatform, EventID: event.ID, Err: err}
	}

	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}

	stored := *event
	stored.ID = id
	events[id] = stored

	if err := c.save(events); err != nil {
		return "", c.classifyWrite(id, err)
	}

	c.logger.Debug("Created device event", "event_id", id, "title", event.Title)
	return id, nil
}

// UpdateEvent rewrites an existing event in place.
func (c *ICSCalendar) UpdateEvent(ctx context.Context, event *models.CalendarEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	events, err := c.load()
	if err != nil {
		return &WriteError{Kind: WriteFailurePlatform, EventID: event.ID, Err: err}
	}

	if _, exists := events[event.ID]; !exists {
		return &WriteError{Kind: WriteFailureNotFound, EventID: event.ID, Err: fmt.Errorf("no such event")}
	}

	events[event.ID] = *event
	if err := c.save(events); err != nil {
		return c.classifyWrite(event.ID, err)
	}

	c.logger.Debug("Updated device event", "event_id", event.ID, "title", event.Title)
	return nil
}

// DeleteEvent removes an event by id.
func (c *ICSCalendar) DeleteEvent(ctx context.Context, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	events, err := c.load()
	if err != nil {
		return &WriteError{Kind: WriteFailurePlatform, EventID: eventID, Err: err}
	}

	if _, exists := events[eventID]; !exists {
		return &WriteError{Kind: WriteFailureNotFound, EventID: eventID, Err: fmt.Errorf("no such event")}
	}

	delete(events, eventID)
	if err := c.save(events); err != nil {
		return c.classifyWrite(eventID, err)
	}

	c.logger.Debug("Deleted device event", "event_id", eventID)
	return nil
}

// QueryPermission reports whether the calendar file is writable.
func (c *ICSCalendar) QueryPermission(ctx context.Context) (models.PermissionStatus, error) {
	return c.checkWritable()
}

// RequestPermission re-checks writability. A file-backed calendar has no
// platform prompt, so requesting and querying coincide.
func (c *ICSCalendar) RequestPermission(ctx context.Context) (models.PermissionStatus, error) {
	return c.checkWritable()
}

// Events returns the calendar's current contents.
func (c *ICSCalendar) Events(ctx context.Context) ([]models.CalendarEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	events, err := c.load()
	if err != nil {
		return nil, err
	}

	list := make([]models.CalendarEvent, 0, len(events))
	for _, event := range events {
		list = append(list, event)
	}
	return list, nil
}

func (c *ICSCalendar) checkWritable() (models.PermissionStatus, error) {
	f, err := os.OpenFile(c.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		if os.IsPermission(err) {
			return models.PermissionDenied, nil
		}
		return models.PermissionRestricted, nil
	}
	f.Close()
	return models.PermissionGranted, nil
}

// load parses the backing file into a map keyed by event id. A missing file
// is an empty calendar.
func (c *ICSCalendar) load() (map[string]models.CalendarEvent, error) {
	events := make(map[string]models.CalendarEvent)

	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return events, nil
		}
		return nil, fmt.Errorf("failed to open calendar file: %w", err)
	}
	defer f.Close()

	cal, err := ics.ParseCalendar(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar file: %w", err)
	}

	for _, ve := range cal.Events() {
		event, err := eventFromVEvent(ve)
		if err != nil {
			c.logger.Warn("Skipping unreadable calendar entry", "uid", ve.Id(), "error", err)
			continue
		}
		events[event.ID] = event
	}
	return events, nil
}

// save serializes the full event set and replaces the backing file
// atomically.
func (c *ICSCalendar) save(events map[string]models.CalendarEvent) error {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetXWRCalName(c.calendarID)

	now := time.Now()
	for _, event := range events {
		ve := cal.AddEvent(event.ID)
		ve.SetDtStampTime(now)
		ve.SetStartAt(event.StartTime)
		ve.SetEndAt(event.EndTime)
		ve.SetSummary(event.Title)
		if event.Description != "" {
			ve.SetDescription(event.Description)
		}
		if event.AssignmentID != 0 {
			ve.SetProperty(ics.ComponentProperty(propAssignmentID), strconv.FormatInt(event.AssignmentID, 10))
		}
		if event.CourseID != 0 {
			ve.SetProperty(ics.ComponentProperty(propCourseID), strconv.FormatInt(event.CourseID, 10))
		}
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(cal.Serialize()), 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write calendar file: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace calendar file: %w", err)
	}
	return nil
}

func (c *ICSCalendar) classifyWrite(eventID string, err error) *WriteError {
	kind := WriteFailurePlatform
	if os.IsPermission(err) || strings.Contains(err.Error(), "permission denied") {
		kind = WriteFailurePermission
	}
	return &WriteError{Kind: kind, EventID: eventID, Err: err}
}

func eventFromVEvent(ve *ics.VEvent) (models.CalendarEvent, error) {
	event := models.CalendarEvent{ID: ve.Id()}
	if event.ID == "" {
		return event, fmt.Errorf("missing UID")
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return event, fmt.Errorf("missing DTSTART: %w", err)
	}
	event.StartTime = start

	if end, err := ve.GetEndAt(); err == nil {
		event.EndTime = end
	}

	if prop := ve.GetProperty(ics.ComponentPropertySummary); prop != nil {
		event.Title = prop.Value
	}
	if prop := ve.GetProperty(ics.ComponentPropertyDescription); prop != nil {
		event.Description = prop.Value
	}
	if prop := ve.GetProperty(ics.ComponentProperty(propAssignmentID)); prop != nil {
		id, err := strconv.ParseInt(prop.Value, 10, 64)
		if err != nil {
			return event, fmt.Errorf("bad assignment id %q: %w", prop.Value, err)
		}
		event.AssignmentID = id
	}
	if prop := ve.GetProperty(ics.ComponentProperty(propCourseID)); prop != nil {
		id, err := strconv.ParseInt(prop.Value, 10, 64)
		if err != nil {
			return event, fmt.Errorf("bad course id %q: %w", prop.Value, err)
		}
		event.CourseID = id
	}

	return event, nil
}
