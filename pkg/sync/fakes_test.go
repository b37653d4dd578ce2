package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/edusync/assignsync/internal/models"
	"github.com/edusync/assignsync/pkg/cache"
	"github.com/edusync/assignsync/pkg/device"
	"github.com/edusync/assignsync/pkg/state"
)

// fakeCalendar is an in-memory device.Calendar with injectable permission
// answers and write failures.
type fakeCalendar struct {
	mu     gosync.Mutex
	events map[string]models.CalendarEvent
	nextID int

	queryStatus    models.PermissionStatus
	requestResults []models.PermissionStatus

	createErr error
	updateErr error
	deleteErr error

	writeCalls int
}

func newFakeCalendar(status models.PermissionStatus) *fakeCalendar {
	return &fakeCalendar{
		events:      make(map[string]models.CalendarEvent),
		queryStatus: status,
	}
}

func (f *fakeCalendar) CreateEvent(_ context.Context, event *models.CalendarEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("ev-%d", f.nextID)
	stored := *event
	stored.ID = id
	f.events[id] = stored
	return id, nil
}

func (f *fakeCalendar) UpdateEvent(_ context.Context, event *models.CalendarEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.events[event.ID]; !ok {
		return &device.WriteError{Kind: device.WriteFailureNotFound, EventID: event.ID, Err: fmt.Errorf("no such event")}
	}
	f.events[event.ID] = *event
	return nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCalls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.events[eventID]; !ok {
		return &device.WriteError{Kind: device.WriteFailureNotFound, EventID: eventID, Err: fmt.Errorf("no such event")}
	}
	delete(f.events, eventID)
	return nil
}

func (f *fakeCalendar) QueryPermission(_ context.Context) (models.PermissionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queryStatus, nil
}

func (f *fakeCalendar) RequestPermission(_ context.Context) (models.PermissionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requestResults) > 0 {
		status := f.requestResults[0]
		f.requestResults = f.requestResults[1:]
		return status, nil
	}
	return f.queryStatus, nil
}

func (f *fakeCalendar) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeCalendar) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeCalls
}

// memorySettings is an in-memory settings.Store.
type memorySettings struct {
	mu      gosync.Mutex
	current models.SyncSettings
	saveErr error
}

func newMemorySettings(s models.SyncSettings) *memorySettings {
	return &memorySettings{current: s}
}

func (m *memorySettings) Load() (models.SyncSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, nil
}

func (m *memorySettings) Save(s models.SyncSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.current = s
	return nil
}

// harness bundles a coordinator with its fakes for coordinator and engine
// tests.
type harness struct {
	coordinator *Coordinator
	engine      *Engine
	cache       *cache.Store[models.Assignment]
	state       *state.Store
	calendar    *fakeCalendar
	gate        *Gate
	settings    *memorySettings
}

func newHarness(t *testing.T, fetch cache.FetchFunc[models.Assignment], permission models.PermissionStatus, syncSettings models.SyncSettings) *harness {
	t.Helper()

	stateStore, err := state.Open(filepath.Join(t.TempDir(), "state.db"), slog.Default())
	if err != nil {
		t.Fatalf("Failed to open state store: %v", err)
	}
	t.Cleanup(func() { stateStore.Close() })

	calendar := newFakeCalendar(permission)
	settingsStore := newMemorySettings(syncSettings)

	gate, err := NewGate(calendar, settingsStore, slog.Default())
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}

	assignmentCache := cache.NewStore(fetch, 10*time.Minute, slog.Default())
	coordinator := NewCoordinator(assignmentCache, stateStore, calendar, gate, slog.Default())

	return &harness{
		coordinator: coordinator,
		engine:      NewEngine(assignmentCache, stateStore, coordinator, gate, slog.Default()),
		cache:       assignmentCache,
		state:       stateStore,
		calendar:    calendar,
		gate:        gate,
		settings:    settingsStore,
	}
}

func deviceSyncSettings() models.SyncSettings {
	s := models.DefaultSyncSettings()
	s.SyncToDevice = true
	return s
}

func staticAssignments(assignments ...models.Assignment) cache.FetchFunc[models.Assignment] {
	return func(_ context.Context, scope models.Scope) ([]models.Assignment, error) {
		var out []models.Assignment
		for _, a := range assignments {
			if scope.Contains(a.CourseID) {
				out = append(out, a)
			}
		}
		return out, nil
	}
}

func dueAssignment(id, courseID int64, title string, due time.Time) models.Assignment {
	return models.Assignment{
		ID:         id,
		CourseID:   courseID,
		Title:      title,
		DueAt:      due,
		Submission: models.SubmissionAvailable,
	}
}
