package slotindex

import (
	"fmt"
	"strings"

	"classroom/internal/model"
)

// Window is a named recurring time window within a day.
type Window string

const (
	WindowMorning1   Window = "morning-1"
	WindowMorning2   Window = "morning-2"
	WindowAfternoon1 Window = "afternoon-1"
	WindowAfternoon2 Window = "afternoon-2"
)

// windowStarts lists windows by the first minute of the day they cover.
var windowStarts = []struct {
	from   int
	window Window
}{
	{from: 0, window: WindowMorning1},
	{from: 10 * 60, window: WindowMorning2},
	{from: 12 * 60, window: WindowAfternoon1},
	{from: 16 * 60, window: WindowAfternoon2},
}

// WindowFor maps an "HH:MM" start time to its window.
func WindowFor(start string) (Window, error) {
	minutes, err := model.ParseClock(start)
	if err != nil {
		return "", err
	}
	w := windowStarts[0].window
	for _, ws := range windowStarts {
		if minutes >= ws.from {
			w = ws.window
		}
	}
	return w, nil
}

// SlotID derives the slot identifier for a session starting at start on date,
// e.g. "mon:morning-1". The identifier depends on the weekday, not the date, so
// the same weekly slot recurs across dates.
func SlotID(date model.Date, start string) (string, error) {
	w, err := WindowFor(start)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s", weekdayKey(date), w), nil
}

func weekdayKey(date model.Date) string {
	return strings.ToLower(date.Weekday().String()[:3])
}
