// Package correlation issues sortable correlation identifiers for queued
// work so a payment job can be traced across enqueue, worker and ledger logs.
package correlation

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a ULID string. IDs issued by the same process are
// monotonically increasing, which keeps log ordering stable.
func NewID() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}
