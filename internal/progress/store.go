package progress

import (
	"context"
	"errors"
)

// ErrAbsent means no snapshot has ever been written for the key. Callers treat
// it as "fresh session", not as a failure.
var ErrAbsent = errors.New("no stored progress")

// Store is the durability contract for snapshots, addressed by (userID,
// testID). At-least-once semantics: a Save that returns nil is durable, a
// failed Save is simply retried by the next scheduled write.
type Store interface {
	Load(ctx context.Context, userID, testID string) (Snapshot, error)
	Save(ctx context.Context, userID, testID string, snap Snapshot) error
}

// Watcher is implemented by stores that can push snapshot updates. Observers
// see the latest write; intermediate writes may be skipped. The returned stop
// function releases the subscription and must be called on teardown.
type Watcher interface {
	Watch(ctx context.Context, userID, testID string) (<-chan Snapshot, func(), error)
}
