package cache

import "time"

// Entry is the envelope every backend stores: an opaque JSON payload plus
// its creation and expiry instants. Entries are owned exclusively by the
// backend instance that created them and are never shared across backends.
type Entry struct {
	Data      []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Live reports whether the entry has not yet expired at the given instant.
func (e Entry) Live(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

func newEntry(data []byte, now time.Time, ttl time.Duration) Entry {
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	value := make([]byte, len(data))
	copy(value, data)
	return Entry{
		Data:      value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}
