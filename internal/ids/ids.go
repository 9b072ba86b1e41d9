package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewEntityID returns a random UUID v4 in canonical textual form. All
// identifiers in the entity registry come from here.
func NewEntityID() string {
	return uuid.NewString()
}

// NewRequestID returns a lexicographically sortable identifier used to
// correlate log and audit entries belonging to one request.
func NewRequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
