package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSchedule is returned for schedules Next does not understand.
var ErrInvalidSchedule = errors.New("scheduler: invalid schedule")

// Next returns the first time after base at which schedule fires. Schedules
// are "@hourly", "@daily", "@weekly" (Sunday midnight) or "@every <interval>",
// where the interval is a Go duration or a whole number of days such as "7d".
func Next(schedule string, base time.Time) (time.Time, error) {
	schedule = strings.TrimSpace(schedule)
	y, m, d := base.Date()
	switch schedule {
	case "@hourly":
		return base.Add(time.Hour).Truncate(time.Hour), nil
	case "@daily":
		return time.Date(y, m, d+1, 0, 0, 0, 0, base.Location()), nil
	case "@weekly":
		days := (7 - int(base.Weekday())) % 7
		if days == 0 {
			days = 7
		}
		return time.Date(y, m, d+days, 0, 0, 0, 0, base.Location()), nil
	}

	if interval, ok := strings.CutPrefix(schedule, "@every "); ok {
		dur, err := parseInterval(interval)
		if err != nil {
			return time.Time{}, err
		}
		return base.Add(dur), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidSchedule, schedule)
}

func parseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%w: interval %q", ErrInvalidSchedule, s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: interval %q", ErrInvalidSchedule, s)
	}
	return d, nil
}

// Validate reports whether Next understands schedule.
func Validate(schedule string) error {
	_, err := Next(schedule, time.Now())
	return err
}
