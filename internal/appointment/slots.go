package appointment

import (
	"iter"
	"time"
)

// Slots yields the candidate start times of w: from the window start, stepping by
// the slot duration, stopping strictly before the window end.
//
// A window dated today (in now's location) only yields times strictly after now;
// a window dated in the past yields nothing. Ranging over the result twice
// produces the same sequence.
func Slots(w AvailabilityWindow, now time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if w.SlotDuration <= 0 || w.Start >= w.End {
			return
		}

		date := dayOf(w.Date)
		today := dayOf(now.In(date.Location()))
		if date.Before(today) {
			return
		}
		sameDay := date.Equal(today)

		end := w.EndsAt()
		var prev time.Time
		for offset := w.Start; offset < w.End; offset += w.SlotDuration {
			t := atOffset(date, offset)
			if !t.Before(end) {
				return
			}
			// wall-clock times skipped by a forward DST shift do not exist
			if wallOffset(t) != offset || (!prev.IsZero() && !t.After(prev)) {
				continue
			}
			prev = t
			if sameDay && !t.After(now) {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

// Contains reports whether t falls within [start, end) of w.
func Contains(w AvailabilityWindow, t time.Time) bool {
	return !t.Before(w.StartsAt()) && t.Before(w.EndsAt())
}

// Aligned reports whether t sits on a slot boundary of w.
// Offsets are compared on the wall clock of w's date, so Aligned agrees with
// Slots across DST changes.
func Aligned(w AvailabilityWindow, t time.Time) bool {
	if w.SlotDuration <= 0 {
		return false
	}
	local := t.In(w.Date.Location())
	if !onDate(local, w.Date) {
		return false
	}
	offset := wallOffset(local)
	if (offset-w.Start)%w.SlotDuration != 0 {
		return false
	}
	return atOffset(w.Date, offset).Equal(t)
}

// wallOffset is the wall-clock time of t since its local midnight.
func wallOffset(t time.Time) time.Duration {
	h, m, sec := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second + time.Duration(t.Nanosecond())
}

func onDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// windowFor picks the window on t's date whose range contains t.
func windowFor(windows []AvailabilityWindow, t time.Time) (AvailabilityWindow, bool) {
	for _, w := range windows {
		if Contains(w, t) {
			return w, true
		}
	}
	return AvailabilityWindow{}, false
}
