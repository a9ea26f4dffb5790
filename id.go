package oni

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a UUIDv7. Record IDs sort by creation time, which keeps
// list output and store scans chronological without a separate sort key.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NowUnix is the canonical timestamp for stored records: Unix seconds.
func NowUnix() int64 {
	return time.Now().Unix()
}
