package models

import "time"

// HoldingPeriods returns how long a position opened at entry has been held.
// With timestamps on both bars it counts whole calendar days, otherwise it
// falls back to the number of bars since the entry bar.
func HoldingPeriods(entryTime, now time.Time, entryIndex, index int) int {
	if !entryTime.IsZero() && !now.IsZero() {
		days := int(now.Sub(entryTime).Hours() / 24)
		if days < 0 {
			return 0
		}
		return days
	}

	bars := index - entryIndex
	if bars < 0 {
		return 0
	}
	return bars
}
