package game

import "time"

// Clock tracks per-side remaining time. Debiting is lazy: elapsed wall-clock
// time is charged to the mover when a move is applied, never by a background
// timer. A zero per-player time yields an untimed clock that never expires.
type Clock struct {
	Allowance  time.Duration // configured time per player; 0 when untimed
	Remaining  map[Color]time.Duration
	Increment  time.Duration
	LastMoveAt time.Time
}

// NewClock builds a clock with perPlayer on both sides. perPlayer == 0 means
// untimed.
func NewClock(perPlayer, increment time.Duration) Clock {
	if perPlayer == 0 {
		return Clock{}
	}
	return Clock{
		Allowance: perPlayer,
		Remaining: map[Color]time.Duration{White: perPlayer, Black: perPlayer},
		Increment: increment,
	}
}

// Untimed reports whether the clock is inert.
func (c Clock) Untimed() bool { return c.Remaining == nil }

// RemainingAt is the live remaining time for side at now. When ticking is
// true the elapsed time since the last move is charged against side; callers
// pass ticking for the side to move only.
func (c Clock) RemainingAt(side Color, now time.Time, ticking bool) time.Duration {
	if c.Untimed() {
		return 0
	}
	rem := c.Remaining[side]
	if ticking && !c.LastMoveAt.IsZero() {
		rem -= now.Sub(c.LastMoveAt)
	}
	return rem
}

// IsExpired reports whether the side to move has run out of time at now.
func (c Clock) IsExpired(side Color, now time.Time) bool {
	if c.Untimed() {
		return false
	}
	return c.RemainingAt(side, now, true) <= 0
}

// Debit returns a copy of the clock with the elapsed time charged to side and
// the increment credited. The first move of a game starts the clock without
// charging the join/setup delay.
func (c Clock) Debit(side Color, now time.Time) Clock {
	if c.Untimed() {
		return c
	}
	next := c.clone()
	if !next.LastMoveAt.IsZero() {
		next.Remaining[side] -= now.Sub(next.LastMoveAt)
	}
	next.Remaining[side] += next.Increment
	next.LastMoveAt = now
	return next
}

func (c Clock) clone() Clock {
	if c.Untimed() {
		return c
	}
	rem := make(map[Color]time.Duration, len(c.Remaining))
	for k, v := range c.Remaining {
		rem[k] = v
	}
	return Clock{Allowance: c.Allowance, Remaining: rem, Increment: c.Increment, LastMoveAt: c.LastMoveAt}
}
