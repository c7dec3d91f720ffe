package strategy

import (
	"fmt"
	"strings"
	"time"
)

// ClockTime is a time of day expressed as the offset from local midnight.
type ClockTime time.Duration

const day = ClockTime(24 * time.Hour)

// Clock builds a ClockTime from hours and minutes.
func Clock(hour, minute int) ClockTime {
	return ClockTime(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// ParseClock accepts HH:MM or HH:MM:SS.
func ParseClock(raw string) (ClockTime, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return TimeOfDay(t), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", raw)
}

// TimeOfDay extracts the wall clock of t in its own location.
func TimeOfDay(t time.Time) ClockTime {
	h, m, s := t.Clock()
	return ClockTime(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond()))
}

func (c ClockTime) String() string {
	d := time.Duration(c)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	if s := int(d%time.Minute) / int(time.Second); s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}
