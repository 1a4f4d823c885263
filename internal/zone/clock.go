package zone

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Minutes per day, used for cross-midnight window arithmetic.
const minutesPerDay = 24 * 60

// ParseClock converts an "HH:MM" string to minutes since midnight.
//
// Returns ErrInvalidClock for malformed input.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}

	return hour*60 + minute, nil
}

// minutesOfDay returns the minutes since midnight for a wall-clock time.
func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// inClockWindow reports whether the minute-of-day now falls within
// [start, end). When end <= start the window crosses midnight: it
// covers [start, 24:00) plus [00:00, end).
func inClockWindow(now, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return now >= start && now < end
	}
	return now >= start || now < end
}
