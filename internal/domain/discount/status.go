package discount

import "time"

// Status is the usability of a code at a point in time.
type Status struct {
	Usable    bool
	Remaining time.Duration
	// Deactivate is set when the code was active but has expired; the caller
	// is expected to persist IsActive=false.
	Deactivate bool
}

// RefreshStatus evaluates c at now without mutating it. An inactive code is
// never usable and the clock is not consulted for it.
func RefreshStatus(c *Code, now time.Time) Status {
	if !c.IsActive {
		return Status{}
	}
	if !now.Before(c.ExpiredAt) {
		return Status{Deactivate: true}
	}
	return Status{Usable: true, Remaining: c.ExpiredAt.Sub(now)}
}
