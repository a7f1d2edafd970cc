// Package ids generates identifiers for stored records.
package ids

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	last    time.Time

	now = time.Now
)

// NewConversationID returns a random conversation identifier.
func NewConversationID() string {
	return uuid.NewString()
}

// NewMessageID returns a time-ordered message identifier together with the
// millisecond timestamp it encodes. Within a process, successive calls yield
// strictly increasing identifiers and non-decreasing timestamps. Across
// processes, identifiers from different milliseconds order by time and those
// from the same millisecond carry equal timestamps, so sorting by identifier
// always sorts by timestamp.
func NewMessageID() (string, time.Time) {
	mu.Lock()
	defer mu.Unlock()

	ts := ulid.Time(ulid.Timestamp(now())).UTC()
	if ts.Before(last) {
		ts = last
	}
	last = ts
	return ulid.MustNew(ulid.Timestamp(ts), entropy).String(), ts
}
