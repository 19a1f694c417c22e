package sched

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidDelay is returned for negative or misordered construction delays.
var ErrInvalidDelay = errors.New("sched: invalid delay")

// never is the sentinel "urgent" bound of a window that must not be forced to
// fire early. It compares later than any realistic deadline.
var never = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// --------------------------------------------------------------------------
// UpdateWindow
// --------------------------------------------------------------------------

// UpdateWindow describes when a pending update may fire (earliest) and when
// it must fire at the latest (urgent). It is immutable; Merge produces a new
// value. The invariant earliest <= urgent holds for every constructed or
// merged window.
type UpdateWindow struct {
	earliest time.Time
	urgent   time.Time
}

// NewWindow builds a window from two delays relative to now. It fails with
// ErrInvalidDelay if earliestDelay is negative or urgentDelay is smaller than
// earliestDelay.
func NewWindow(earliestDelay, urgentDelay time.Duration) (UpdateWindow, error) {
	if earliestDelay < 0 {
		return UpdateWindow{}, fmt.Errorf("%w: earliest delay %v is negative", ErrInvalidDelay, earliestDelay)
	}
	if urgentDelay < earliestDelay {
		return UpdateWindow{}, fmt.Errorf("%w: urgent delay %v is before earliest delay %v", ErrInvalidDelay, urgentDelay, earliestDelay)
	}
	now := time.Now()
	return UpdateWindow{
		earliest: now.Add(earliestDelay),
		urgent:   now.Add(urgentDelay),
	}, nil
}

// Now returns a window that is due immediately.
func Now() UpdateWindow {
	now := time.Now()
	return UpdateWindow{earliest: now, urgent: now}
}

// Postpone returns a window that may fire after the given delay but carries
// no urgent bound, so it never forces an earlier pending request to fire.
func Postpone(delay time.Duration) UpdateWindow {
	return UpdateWindow{
		earliest: time.Now().Add(delay),
		urgent:   never,
	}
}

// Urgent returns a window that fires at exactly now+delay, not sooner and not
// later.
func Urgent(delay time.Duration) UpdateWindow {
	at := time.Now().Add(delay)
	return UpdateWindow{earliest: at, urgent: at}
}

// Earliest returns the earliest time the update may fire.
func (w UpdateWindow) Earliest() time.Time {
	return w.earliest
}

// Urgent returns the latest time the update must fire. Windows built with
// Postpone report the far-future sentinel here.
func (w UpdateWindow) Urgent() time.Time {
	return w.urgent
}

// Equal reports structural equality on both timestamps.
func (w UpdateWindow) Equal(other UpdateWindow) bool {
	return w.earliest.Equal(other.earliest) && w.urgent.Equal(other.urgent)
}

func (w UpdateWindow) String() string {
	if w.urgent.Equal(never) {
		return fmt.Sprintf("{earliest: %s, urgent: never}", w.earliest.Format(time.RFC3339Nano))
	}
	return fmt.Sprintf("{earliest: %s, urgent: %s}", w.earliest.Format(time.RFC3339Nano), w.urgent.Format(time.RFC3339Nano))
}

// --------------------------------------------------------------------------
// Merge
// --------------------------------------------------------------------------

// Merge combines two outstanding requests into one: the merged window waits
// for the later of the two earliest times but honors the sooner of the two
// urgent bounds. If that leaves earliest after urgent, earliest is clamped
// down to urgent and clamped is true: the effective deadline moved earlier
// than previously known, so a sleeping scheduler must be woken to re-evaluate.
//
// Merge alone cannot decide wake necessity in the non-clamping case; that
// depends on what the caller previously scheduled.
func Merge(prev, next UpdateWindow) (merged UpdateWindow, clamped bool) {
	merged.earliest = prev.earliest
	if next.earliest.After(merged.earliest) {
		merged.earliest = next.earliest
	}
	merged.urgent = prev.urgent
	if next.urgent.Before(merged.urgent) {
		merged.urgent = next.urgent
	}
	if merged.earliest.After(merged.urgent) {
		merged.earliest = merged.urgent
		clamped = true
	}
	return merged, clamped
}
