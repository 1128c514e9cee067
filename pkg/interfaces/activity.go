package interfaces

import (
	"context"

	"classhub/pkg/types"
)

// ActivityRecorder receives connection lifecycle events. Record is called
// from the hub goroutine and must return without waiting on I/O.
type ActivityRecorder interface {
	Record(event types.ActivityEvent)
}

// ActivityStore is an ActivityRecorder that can also be queried.
type ActivityStore interface {
	ActivityRecorder

	// RecentActivity returns up to limit events, newest first.
	RecentActivity(ctx context.Context, limit int) ([]*types.ActivityEvent, error)

	// ConnectionActivity returns every event for one connection, oldest first.
	ConnectionActivity(ctx context.Context, connectionID string) ([]*types.ActivityEvent, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
