package querycache

import "time"

// Status is the lifecycle state of a cache entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is a point-in-time copy of the state cached for a key.
//
// When Status is StatusSuccess, Data is either the last confirmed server value or an
// optimistic value awaiting confirmation. Err is non-nil only when Status is StatusError;
// Data keeps the last good value in that case.
type Entry struct {
	Key       QueryKey
	Data      any
	Status    Status
	Err       error
	Stale     bool
	Fetching  bool
	UpdatedAt time.Time
}

// HasData reports whether the entry holds a value.
func (e Entry) HasData() bool {
	return e.Data != nil
}

// IsFresh reports a success entry that has not been invalidated.
func (e Entry) IsFresh() bool {
	return e.Status == StatusSuccess && !e.Stale
}

func idleEntry(key QueryKey) Entry {
	return Entry{Key: key, Status: StatusIdle}
}

// Listener is called with the new entry after every transition of a key.
type Listener func(Entry)
