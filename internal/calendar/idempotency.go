// Package calendar holds provider-independent plumbing around domain.CalendarProvider:
// idempotency keys, bounded retries and the provider registry.
package calendar

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Operation names a mutating provider call.
type Operation string

const (
	OpCreate     Operation = "create"
	OpReschedule Operation = "reschedule"
	OpCancel     Operation = "cancel"
	OpRepair     Operation = "repair"
)

// IdempotencyKey derives a stable key from interview, operation and the version the
// operation will commit. A retried call produces the same key and therefore cannot
// create a second external event. The output is lowercase hex, which is valid as a
// client-assigned Google Calendar event id.
func IdempotencyKey(interviewID string, op Operation, version int64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", interviewID, op, version))
	return hex.EncodeToString(sum[:])
}
