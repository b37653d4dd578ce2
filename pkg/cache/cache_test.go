package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edusync/assignsync/internal/models"
)

func TestGetFetchesOnFirstCall(t *testing.T) {
	fetches := 0
	store := NewStore(func(ctx context.Context, scope models.Scope) ([]models.Assignment, error) {
		fetches++
		return []models.Assignment{{ID: 1}, {ID: 2}}, nil
	}, 10*time.Minute, slog.Default())

	entities, status, err := store.Get(context.Background(), models.ScopeAll, false)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(entities) != 2 {
		t.Errorf("Expected 2 entities, got %d", len(entities))
	}
	if fetches != 1 {
		t.Errorf("Expected 1 fetch, got %d", fetches)
	}
	if status.Stale {
		t.Error("Fresh fetch must not be stale")
	}
	if status.Count != 2 {
		t.Errorf("Expected status count 2, got %d", status.Count)
	}
}

func TestGetServesFreshDataWithoutRefetch(t *testing.T) {
	fetches := 0
	store := NewStore(func(ctx context.Context, scope models.Scope) ([]models.Assignment, error) {
		fetches++
		return []models.Assignment{{ID: 1}}, nil
	}, 10*time.Minute, slog.Default())

	ctx := context.Background()
	if _, _, err := store.Get(ctx, models.ScopeAll, false); err != nil {
		t.Fatalf("First get failed: %v", err)
	}
	if _, _, err := store.Get(ctx, models.ScopeAll, false); err != nil {
		t.Fatalf("Second get failed: %v", err)
	}

	if fetches != 1 {
		t.Errorf("Expected cached second read, got %d fetches", fetches)
	}
}

func TestGetForceRefreshBypassesCache(t *testing.T) {
	fetches := 0
	store := NewStore(func(ctx context.Context, scope models.Scope) ([]models.Assignment, error) {
		fetches++
		return []models.Assignment{{ID: int64(fetches)}}, nil
	}, 10*time.Minute, slog.Default())

	ctx := context.Background()
	store.Get(ctx, models.ScopeAll, false)
	entities, _, err := store.Get(ctx, models.ScopeAll, true)
	if err != nil {
		t.Fatalf("Forced get failed: %v", err)
	}

	if fetches != 2 {
		t.Errorf("Expected 2 fetches with forceRefresh, got %d", fetches)
	}
	if entities[0].ID != 2 {
		t.Errorf("Expected refreshed data, got id %d", entities[0].ID)
	}
}

func TestGetStaleFallbackOnFetchFailure(t *testing.T) {
	var fail atomic.Bool
	store := NewStore(func(ctx context.Context, scope models.Scope) ([]models.Assignment, error) {
		if fail.Load() {
			return nil, errors.New("network unreachable")
		}
		return []models.Assignment{{ID: 1}}, nil
	}, 10*time.Minute, slog.Default())

	ctx := context.Background()
	if _, _, err := store.Get(ctx, models.ScopeAll, false); err != nil {
		t.Fatalf("Seed fetch failed: %v", err)
	}

	fail.Store(true)
	entities, status, err := store.Get(ctx, models.ScopeAll, true)
	if err != nil {
		t.Fatalf("Expected stale fallback, got error: %v", err)
	}
	if len(entities) != 1 || entities[0].ID != 1 {
		t.Errorf("Expected prior cached set, got %v", entities)
	}
	if !status.Stale {
		t.Error("Expected status to be marked stale after failed refresh")
	}
}

func TestGetFailsWithoutPriorData(t *testing.T) {
	store := NewStore(func(ctx context.Context, scope models.Scope) ([]models.Assignment, error) {
		return nil, errors.New("server error")
	}, 10*time.Minute, slog.Default())

	if _, _, err := store.Get(context.Background(), models.ScopeAll, false); err == nil {
		t.Error("Expected error when no cached data exists")
	}
}

func TestClearForcesRefetch(t *testing.T) {
	fetches := 0
	store := NewStore(func(ctx context.Context, scope models.Scope) ([]models.Assignment, error) {
		fetches++
		return []models.Assignment{{ID: 1}}, nil
	}, 10*time.Minute, slog.Default())

	ctx := context.Background()
	store.Get(ctx, models.ScopeAll, false)
	store.Clear(models.ScopeAll)

	if status := store.Status(models.ScopeAll); status.Count != 0 {
		t.Errorf("Expected empty status after clear, got count %d", status.Count)
	}

	store.Get(ctx, models.ScopeAll, false)
	if fetches != 2 {
		t.Errorf("Expected refetch after clear, got %d fetches", fetches)
	}
}

func TestScopesAreIndependent(t *testing.T) {
	store := NewStore(func(ctx context.Context, scope models.Scope) ([]models.Assignment, error) {
		return []models.Assignment{{ID: scope.CourseID, CourseID: scope.CourseID}}, nil
	}, 10*time.Minute, slog.Default())

	ctx := context.Background()
	a, _, _ := store.Get(ctx, models.CourseScope(1), false)
	b, _, _ := store.Get(ctx, models.CourseScope(2), false)

	if a[0].CourseID != 1 || b[0].CourseID != 2 {
		t.Errorf("Scopes leaked into each other: %v, %v", a, b)
	}
}

func TestConcurrentCallersShareOneFetch(t *testing.T) {
	var fetches atomic.Int32
	release := make(chan struct{})

	store := NewStore(func(ctx context.Context, scope models.Scope) ([]models.Assignment, error) {
		fetches.Add(1)
		<-release
		return []models.Assignment{{ID: 1}}, nil
	}, 10*time.Minute, slog.Default())

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := store.Get(context.Background(), models.ScopeAll, false)
			errs <- err
		}()
	}

	// Give every caller time to queue on the single in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent get failed: %v", err)
		}
	}
	if got := fetches.Load(); got != 1 {
		t.Errorf("Expected a single shared fetch, got %d", got)
	}
}

func TestGetHonorsContextWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	store := NewStore(func(ctx context.Context, scope models.Scope) ([]models.Assignment, error) {
		<-release
		return nil, nil
	}, 10*time.Minute, slog.Default())

	go store.Get(context.Background(), models.ScopeAll, false)
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.Get(ctx, models.ScopeAll, false)
	close(release)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled for waiting caller, got %v", err)
	}
}
