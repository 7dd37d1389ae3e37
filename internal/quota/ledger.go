// Package quota meters AI calls per identity per UTC day.
//
// Every backend implements Consume as a single atomic check-and-increment, so
// concurrent requests can never push a day's count past its limit. Counts are
// keyed by (identity, day); a new UTC day starts from zero without any
// explicit reset, and older rows are simply left behind.
package quota

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Unbounded as a limit disables metering for the caller.
const Unbounded = -1

var (
	ErrEmptyIdentity = errors.New("quota: empty identity")
)

// Identity is who a unit of quota is charged to.
type Identity struct {
	UserID   uuid.UUID
	DeviceID string
}

// Key returns the ledger key. Authenticated users always win over the device.
func (i Identity) Key() string {
	if i.UserID != uuid.Nil {
		return "user:" + i.UserID.String()
	}
	if i.DeviceID != "" {
		return "device:" + i.DeviceID
	}
	return ""
}

// KeyFor returns the ledger key for one feature. Each feature keeps its own
// daily count so that searches never eat into the analysis allowance.
func (i Identity) KeyFor(f Feature) string {
	k := i.Key()
	if k == "" {
		return ""
	}
	return k + ":" + string(f)
}

func (i Identity) Authenticated() bool { return i.UserID != uuid.Nil }

// Decision is the outcome of a Consume call.
type Decision struct {
	Allowed   bool
	Used      int
	Limit     int
	Remaining int
}

// Ledger is the durable per-day usage counter.
type Ledger interface {
	// Consume records one unit for key today if the count is below limit.
	Consume(ctx context.Context, key string, limit int) (Decision, error)
	// Release gives back one unit consumed today. It never goes below zero.
	Release(ctx context.Context, key string) error
	// Used returns today's count for key.
	Used(ctx context.Context, key string) (int, error)
}

// Clock returns the current time. Backends take one so tests can move days.
type Clock func() time.Time

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayString formats t's UTC day as YYYY-MM-DD.
func DayString(t time.Time) string { return t.UTC().Format(time.DateOnly) }

// NewDecision builds a Decision for a used count against limit.
func NewDecision(allowed bool, used, limit int) Decision {
	d := Decision{Allowed: allowed, Used: used, Limit: limit}
	switch {
	case limit < 0:
		d.Remaining = Unbounded
	case used >= limit:
		d.Remaining = 0
	default:
		d.Remaining = limit - used
	}
	return d
}

// denied is the decision returned for a zero limit without touching storage.
func denied(limit int) Decision {
	return Decision{Allowed: false, Used: 0, Limit: limit, Remaining: 0}
}
