package temporal

import "fmt"

// Lookback keeps events on the before-index side: day offsets in
// [-DaysBeforeStart, -DaysBeforeEnd]. A nil DaysBeforeStart means unbounded
// lookback. DaysBeforeEnd zero keeps events up to and including the index
// date itself.
type Lookback struct {
	DaysBeforeStart *int
	DaysBeforeEnd   int
}

func (w Lookback) Validate() error {
	if w.DaysBeforeEnd < 0 {
		return fmt.Errorf("days_before_end must be >= 0, got %d", w.DaysBeforeEnd)
	}
	if w.DaysBeforeStart != nil {
		if *w.DaysBeforeStart < 0 {
			return fmt.Errorf("days_before_start must be >= 0, got %d", *w.DaysBeforeStart)
		}
		if w.DaysBeforeEnd >= *w.DaysBeforeStart {
			return fmt.Errorf("days_before_end (%d) must be less than days_before_start (%d)", w.DaysBeforeEnd, *w.DaysBeforeStart)
		}
	}
	return nil
}

func (w Lookback) contains(daysFromIndex int) bool {
	if daysFromIndex > -w.DaysBeforeEnd {
		return false
	}
	if w.DaysBeforeStart != nil && daysFromIndex < -*w.DaysBeforeStart {
		return false
	}
	return true
}

// FollowUp keeps events on the after-index side: day offsets in
// [DaysAfterStart, DaysAfterEnd]. A nil DaysAfterEnd means unbounded
// follow-up. DaysAfterStart zero keeps events from the index date forward.
type FollowUp struct {
	DaysAfterStart int
	DaysAfterEnd   *int
}

func (w FollowUp) Validate() error {
	if w.DaysAfterStart < 0 {
		return fmt.Errorf("days_after_start must be >= 0, got %d", w.DaysAfterStart)
	}
	if w.DaysAfterEnd != nil && *w.DaysAfterEnd < w.DaysAfterStart {
		return fmt.Errorf("days_after_end (%d) must be >= days_after_start (%d)", *w.DaysAfterEnd, w.DaysAfterStart)
	}
	return nil
}

func (w FollowUp) contains(daysFromIndex int) bool {
	if daysFromIndex < w.DaysAfterStart {
		return false
	}
	if w.DaysAfterEnd != nil && daysFromIndex > *w.DaysAfterEnd {
		return false
	}
	return true
}
