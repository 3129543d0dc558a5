package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	clock24Re = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	clock12Re = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*([ap])\.?\s*m\.?$`)
)

// MinutesPerDay is the length of a day in minutes.
const MinutesPerDay = 24 * 60

// ParseClock converts an upstream time-of-day string into minutes after
// midnight. Accepted forms are "20:00", "8:05", "8 PM", "8:30am", "noon" and
// "midnight". "24:00" is read as midnight (0).
func ParseClock(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	s = strings.Join(strings.Fields(s), " ")

	switch strings.ToLower(s) {
	case "":
		return 0, fmt.Errorf("empty time of day")
	case "noon":
		return 12 * 60, nil
	case "midnight":
		return 0, nil
	}

	if m := clock24Re.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		if h == 24 && min == 0 {
			return 0, nil
		}
		if h > 23 || min > 59 {
			return 0, fmt.Errorf("time of day out of range: %q", raw)
		}
		return h*60 + min, nil
	}

	if m := clock12Re.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		min := 0
		if m[2] != "" {
			min, _ = strconv.Atoi(m[2])
		}
		if h < 1 || h > 12 || min > 59 {
			return 0, fmt.Errorf("time of day out of range: %q", raw)
		}
		// 12 AM is midnight, 12 PM is noon.
		h %= 12
		if strings.EqualFold(m[3], "p") {
			h += 12
		}
		return h*60 + min, nil
	}

	return 0, fmt.Errorf("unable to parse time of day: %q", raw)
}

// ParseHourLabel returns the hour (0-23) named by an hourly busyness label
// such as "6 AM" or "18:00".
func ParseHourLabel(label string) (int, error) {
	minutes, err := ParseClock(label)
	if err != nil {
		return 0, err
	}
	return minutes / 60, nil
}

// FormatClock renders minutes after midnight as "HH:MM".
func FormatClock(minutes int) string {
	minutes = ((minutes % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
