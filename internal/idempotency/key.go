// Package idempotency derives stable request keys so duplicate
// "request consultation" submissions collapse onto one session row.
package idempotency

import (
	"fmt"
	"time"
)

// DefaultBucket is the window within which repeated submissions for the
// same client/advisor pair produce the same key.
const DefaultBucket = time.Minute

// Key returns a deterministic request key for the given client/advisor pair
// and instant. Calls within the same bucket yield the same key; the Session
// Store's unique index on request_key turns the duplicate insert into a
// typed Conflict. Pure function of its inputs.
func Key(clientID, advisorID uint, at time.Time, bucket time.Duration) string {
	if bucket <= 0 {
		bucket = DefaultBucket
	}
	slot := at.UTC().Unix() / int64(bucket.Seconds())
	return fmt.Sprintf("req:%d:%d:%d", clientID, advisorID, slot)
}
