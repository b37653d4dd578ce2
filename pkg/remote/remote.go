// Package remote defines the contract for the learning-management API that
// supplies assignments, and an HTTP client implementing it.
package remote

import (
	"context"
	"fmt"

	"github.com/edusync/assignsync/internal/models"
)

// Source fetches authoritative assignment lists for a scope.
type Source interface {
	FetchAssignments(ctx context.Context, scope models.Scope) ([]models.Assignment, error)
}

// FailureKind classifies fetch failures.
type FailureKind string

const (
	FailureNetwork FailureKind = "network"
	FailureAuth    FailureKind = "auth"
	FailureServer  FailureKind = "server"
)

// FetchError is a classified remote fetch failure. Callers treat every kind
// the same way (stale-read fallback); the kind exists for logging and
// operator diagnosis.
type FetchError struct {
	Kind  FailureKind
	Scope models.Scope
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch assignments (%s, scope %s): %v", e.Kind, e.Scope.Key(), e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
