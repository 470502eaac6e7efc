// Package daykey maps instants to the calendar day they belong to in a fixed
// reference timezone.
//
// A day key is the civil date encoded as midnight UTC. Keys compare with ==,
// order with Before/After and round-trip through a SQL DATE column unchanged.
package daykey

import "time"

const Layout = time.DateOnly

// Normalize returns the key of the calendar day containing t in loc.
func Normalize(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Normalizer struct {
	loc *time.Location
	now func() time.Time
}

func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{
		loc: loc,
		now: time.Now,
	}
}

// WithClock returns a copy of n that reads the current time from now.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	return &Normalizer{
		loc: n.loc,
		now: now,
	}
}

func (n *Normalizer) Location() *time.Location {
	return n.loc
}

func (n *Normalizer) Normalize(t time.Time) time.Time {
	return Normalize(t, n.loc)
}

func (n *Normalizer) Today() time.Time {
	return n.Normalize(n.now())
}

// Resolve normalizes at, or the current time when at is nil.
func (n *Normalizer) Resolve(at *time.Time) time.Time {
	if at == nil {
		return n.Today()
	}
	return n.Normalize(*at)
}

// Start returns the instant the day identified by key begins in the reference timezone.
func (n *Normalizer) Start(key time.Time) time.Time {
	y, m, d := key.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, n.loc)
}

// Parse reads a YYYY-MM-DD date as a day key.
func Parse(s string) (time.Time, error) {
	return time.Parse(Layout, s)
}
