package core

import (
	"strings"
	"time"
)

// TimeWindow selects transactions by their local date.
type TimeWindow struct {
	Zone  string     // coarse zone filter; empty matches every zone
	Year  int        // >= 1
	Month time.Month // 0 means the whole year
}

// Bounds returns the window as local wall-clock [start, end).
func (w TimeWindow) Bounds() (start, end time.Time) {
	if w.Month == 0 {
		start = time.Date(w.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)
	}
	start = time.Date(w.Year, w.Month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// ParseMonth parses a full English month name, case-insensitively.
// An empty string means no month filter and returns 0.
func ParseMonth(name string) (time.Month, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, nil
	}
	for m := time.January; m <= time.December; m++ {
		if strings.EqualFold(name, m.String()) {
			return m, nil
		}
	}
	return 0, invalidInput("list", "invalid month %q: use a full month name", name)
}

// NewTimeWindow validates year and month and builds a window.
func NewTimeWindow(zone string, year int, month string) (TimeWindow, error) {
	if year < 1 {
		return TimeWindow{}, invalidInput("list", "invalid year %d", year)
	}
	m, err := ParseMonth(month)
	if err != nil {
		return TimeWindow{}, err
	}
	return TimeWindow{Zone: zone, Year: year, Month: m}, nil
}
