package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type SessionStatus string

const (
	SessionPlanned     SessionStatus = "planned"
	SessionCancelled   SessionStatus = "cancelled"
	SessionPostponed   SessionStatus = "postponed"
	SessionMadeUp      SessionStatus = "made-up"
	SessionSubstituted SessionStatus = "substituted"
)

// ParseSessionStatus validates a status string.
func ParseSessionStatus(s string) (SessionStatus, error) {
	switch st := SessionStatus(strings.TrimSpace(strings.ToLower(s))); st {
	case SessionPlanned, SessionCancelled, SessionPostponed, SessionMadeUp, SessionSubstituted:
		return st, nil
	}
	return "", fmt.Errorf("unknown session status %q", s)
}

// Occupies reports whether a session in this status holds its room slot.
func (s SessionStatus) Occupies() bool {
	return s != SessionCancelled
}

// Session is one scheduled occurrence of a course meeting.
type Session struct {
	ID                   string        `json:"id"`
	CourseID             string        `json:"course_id"`
	Date                 Date          `json:"date"`
	StartTime            string        `json:"start_time"`
	EndTime              string        `json:"end_time"`
	RoomID               string        `json:"room_id"`
	SlotID               string        `json:"slot_id"`
	Status               SessionStatus `json:"status"`
	InstructorID         string        `json:"instructor_id"`
	OriginalInstructorID string        `json:"original_instructor_id"`
	RescheduledTo        *Date         `json:"rescheduled_to,omitempty"`
	OriginSessionID      *string       `json:"origin_session_id,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// ParseClock validates an "HH:MM" time of day and returns minutes after midnight.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok || len(h) != 2 || len(m) != 2 {
		return 0, fmt.Errorf("time %q must be HH:MM", s)
	}
	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("time %q has invalid hour", s)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("time %q has invalid minute", s)
	}
	return hours*60 + minutes, nil
}
