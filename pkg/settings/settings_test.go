package settings

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edusync/assignsync/internal/models"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "settings.yaml"), slog.Default())

	settings, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	defaults := models.DefaultSyncSettings()
	if settings.Enabled != defaults.Enabled {
		t.Errorf("Expected default enabled flag %v, got %v", defaults.Enabled, settings.Enabled)
	}
	if settings.AutoSyncInterval != defaults.AutoSyncInterval {
		t.Errorf("Expected default interval %v, got %v", defaults.AutoSyncInterval, settings.AutoSyncInterval)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "settings.yaml"), slog.Default())

	saved := models.SyncSettings{
		Enabled:          true,
		CourseIDs:        []int64{1, 3},
		ReminderLead:     45 * time.Minute,
		SyncToDevice:     true,
		DeviceCalendarID: "assignments",
		AutoSync:         true,
		AutoSyncInterval: 20 * time.Minute,
	}
	if err := store.Save(saved); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(loaded.CourseIDs) != 2 || loaded.CourseIDs[0] != 1 || loaded.CourseIDs[1] != 3 {
		t.Errorf("Course ids lost on round trip: %v", loaded.CourseIDs)
	}
	if loaded.ReminderLead != 45*time.Minute {
		t.Errorf("Reminder lead lost on round trip: %v", loaded.ReminderLead)
	}
	if !loaded.SyncToDevice || loaded.DeviceCalendarID != "assignments" {
		t.Errorf("Device settings lost on round trip: %+v", loaded)
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("enabled: [not-a-bool"), 0o600); err != nil {
		t.Fatalf("Failed to write corrupt file: %v", err)
	}

	store := NewFileStore(path, slog.Default())
	if _, err := store.Load(); err == nil {
		t.Error("Expected error for corrupt settings file")
	}
}

func TestSaveFailsOnUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatalf("Failed to chmod: %v", err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o700) })

	store := NewFileStore(filepath.Join(dir, "settings.yaml"), slog.Default())
	if err := store.Save(models.DefaultSyncSettings()); err == nil {
		t.Error("Expected error saving to read-only directory")
	}
}
