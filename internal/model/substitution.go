package model

import "time"

type SubstitutionStatus string

const (
	SubstitutionRequested SubstitutionStatus = "requested"
	SubstitutionAccepted  SubstitutionStatus = "accepted"
	SubstitutionDeclined  SubstitutionStatus = "declined"
)

// SubstitutionRequest tracks an absence declaration through to resolution.
type SubstitutionRequest struct {
	ID                      string             `json:"id"`
	SessionID               string             `json:"session_id"`
	AbsentInstructorID      string             `json:"absent_instructor_id"`
	ReplacementInstructorID *string            `json:"replacement_instructor_id,omitempty"`
	Status                  SubstitutionStatus `json:"status"`
	Reason                  string             `json:"reason"`
	RequestedBy             string             `json:"requested_by"`
	RequestedAt             time.Time          `json:"requested_at"`
	RespondedBy             *string            `json:"responded_by,omitempty"`
	RespondedAt             *time.Time         `json:"responded_at,omitempty"`
}
