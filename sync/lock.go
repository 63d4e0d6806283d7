package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cherrors "github.com/evalgo-chronicle/chronicle/errors"
	"github.com/evalgo-chronicle/chronicle/storage"
)

func lockPath(databaseID string) string {
	return fmt.Sprintf("_meta/locks/%s", databaseID)
}

// LockInfo is the stamped content of a lock blob: owner identity and the
// lease timestamp at which it was acquired.
type LockInfo struct {
	OwnerID    string    `json:"ownerId"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// acquireLock writes the lock blob with IfNoneMatch="*": a contending sync
// sees the existing blob and gets CONFLICT, translated here to LOCK_HELD.
func acquireLock(ctx context.Context, backend storage.Backend, databaseID, ownerID string) error {
	path := lockPath(databaseID)
	body, err := json.Marshal(LockInfo{OwnerID: ownerID, AcquiredAt: time.Now().UTC()})
	if err != nil {
		return cherrors.Wrap(cherrors.Internal, path, err)
	}
	_, err = backend.Write(ctx, path, body, storage.WriteOptions{IfNoneMatch: "*"})
	if err != nil {
		if cherrors.CodeOf(err) == cherrors.Conflict {
			return cherrors.WithPath(cherrors.LockHeld, path, "lock is held by another sync")
		}
		return err
	}
	return nil
}

// InspectLock reads the lock blob for databaseID without acquiring it, for
// diagnosing a stuck lock (who holds it, and since when). It returns
// (nil, nil) when no lock is currently held.
func InspectLock(ctx context.Context, backend storage.Backend, databaseID string) (*LockInfo, error) {
	path := lockPath(databaseID)
	data, err := backend.Read(ctx, path)
	if err != nil {
		if cherrors.CodeOf(err) == cherrors.NotFound {
			return nil, nil
		}
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, cherrors.Wrap(cherrors.Internal, path, err)
	}
	return &info, nil
}

// releaseLock is best-effort: callers always attempt it, even after a
// failed or timed-out operation, but never let its own failure mask the
// operation's real error.
func releaseLock(backend storage.Backend, databaseID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = backend.Delete(ctx, lockPath(databaseID))
}
