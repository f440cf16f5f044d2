package model

import (
	"fmt"
	"strings"
)

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
)

// ParseAttendanceStatus validates an attendance status string.
func ParseAttendanceStatus(s string) (AttendanceStatus, error) {
	switch st := AttendanceStatus(strings.TrimSpace(strings.ToLower(s))); st {
	case AttendancePresent, AttendanceAbsent, AttendanceLate:
		return st, nil
	}
	return "", fmt.Errorf("unknown attendance status %q", s)
}

// Streak is a student's consecutive-day presence state.
type Streak struct {
	Current     int   `json:"streak"`
	LastPresent *Date `json:"last_present,omitempty"`
	Bonus       int   `json:"bonus"`
}

// LeaderboardEntry is one ranked student.
type LeaderboardEntry struct {
	StudentID string `json:"student_id"`
	Streak    int    `json:"streak"`
}
