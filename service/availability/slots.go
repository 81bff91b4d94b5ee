package availability

// Interval is a half-open [Start,End) range of minutes from midnight.
type Interval struct {
	Start int
	End   int
}

// Overlaps reports whether two half-open intervals intersect. Touching at
// a boundary is not an overlap.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(candidate, b) {
			return true
		}
	}
	return false
}

// BuildSlots walks a working window in steps of duration and returns the
// candidates that survive the filters: a candidate is dropped when it
// intersects the lunch break, starts before notBefore (the current
// minute-of-day when the requested date is today, zero otherwise), or
// overlaps an existing booking. A trailing remainder shorter than
// duration yields no partial slot.
func BuildSlots(window Interval, duration int, lunch *Interval, busy []Interval, notBefore int) []Interval {
	if duration <= 0 {
		return nil
	}

	var slots []Interval
	for start := window.Start; start+duration <= window.End; start += duration {
		candidate := Interval{Start: start, End: start + duration}
		if candidate.Start < notBefore {
			continue
		}
		if lunch != nil && Overlaps(candidate, *lunch) {
			continue
		}
		if overlapsAny(candidate, busy) {
			continue
		}
		slots = append(slots, candidate)
	}
	return slots
}
