package sync

import (
	"errors"
)

// ErrSyncInProgress is returned immediately when a sync is requested for a
// scope that already has an active run. Requests are rejected, never queued.
var ErrSyncInProgress = errors.New("sync already in progress for this scope")
