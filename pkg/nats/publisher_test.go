package nats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/edusync/assignsync/internal/models"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.URL != "nats://localhost:4222" {
		t.Errorf("Expected default URL to be 'nats://localhost:4222', got %s", config.URL)
	}

	if config.Subject != "assignments.sync.results" {
		t.Errorf("Expected default subject to be 'assignments.sync.results', got %s", config.Subject)
	}

	if config.ConnectTimeout != 5*time.Second {
		t.Errorf("Expected default connect timeout to be 5s, got %v", config.ConnectTimeout)
	}
}

func TestSyncResultSerialization(t *testing.T) {
	// Verify the wire shape downstream consumers depend on, without an
	// actual NATS server.
	result := &models.SyncResult{
		Mode:      models.SyncModeFull,
		Scope:     models.CourseScope(3),
		Created:   2,
		Updated:   1,
		Deleted:   1,
		Skipped:   0,
		Errors:    []string{"device write (platform, event ev-9): timeout"},
		StartedAt: time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC),
		Duration:  3 * time.Second,
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Failed to marshal sync result: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal sync result: %v", err)
	}

	if decoded["mode"] != "full" {
		t.Errorf("Expected mode 'full', got %v", decoded["mode"])
	}
	if decoded["created"] != float64(2) {
		t.Errorf("Expected created 2, got %v", decoded["created"])
	}
	scope, ok := decoded["scope"].(map[string]any)
	if !ok || scope["course_id"] != float64(3) {
		t.Errorf("Expected course scope 3, got %v", decoded["scope"])
	}
	errs, ok := decoded["errors"].([]any)
	if !ok || len(errs) != 1 {
		t.Errorf("Expected 1 error on the wire, got %v", decoded["errors"])
	}
}

func TestPublishResultWithoutConnection(t *testing.T) {
	publisher := &Publisher{subject: "assignments.sync.results"}

	err := publisher.PublishResult(context.Background(), &models.SyncResult{Mode: models.SyncModeFull})
	if err == nil {
		t.Error("Expected error publishing without a connection")
	}
}

func TestIsHealthyWithoutConnection(t *testing.T) {
	publisher := &Publisher{}

	if err := publisher.IsHealthy(); err == nil {
		t.Error("Expected health check to fail without a connection")
	}
}
