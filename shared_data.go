package conductor

import (
	"context"
	"maps"
	"slices"
	"time"
)

// SharedDataChannel is the channel SetShared broadcasts every new entry on.
const SharedDataChannel = "shared-data-updated"

// SharedEntry is one value in the shared store.
type SharedEntry struct {
	Key       string
	Value     any
	OwnerID   string
	Timestamp time.Time
}

// SetShared stores value under key, replacing any earlier entry, then
// broadcasts the entry on SharedDataChannel with ownerID as sender. It returns
// the number of subscribers that handled the broadcast.
func (b *Bus) SetShared(ctx context.Context, key string, value any, ownerID string) int {
	entry := SharedEntry{Key: key, Value: value, OwnerID: ownerID, Timestamp: b.now()}

	b.mu.Lock()
	b.shared[key] = entry
	b.mu.Unlock()

	b.logger.Debug("Shared data updated", "key", key, "owner", ownerID)
	return b.Broadcast(ctx, SharedDataChannel, entry, ownerID)
}

// GetShared returns the entry stored under key.
func (b *Bus) GetShared(key string) (SharedEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.shared[key]
	return entry, ok
}

// SharedKeys returns the keys of the shared store in sorted order.
func (b *Bus) SharedKeys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Sorted(maps.Keys(b.shared))
}
