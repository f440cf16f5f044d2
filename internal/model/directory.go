package model

// ContractType distinguishes permanent from temporary staff.
type ContractType string

const (
	ContractPermanent ContractType = "permanent"
	ContractTemporary ContractType = "temporary"
)

// Rank orders contract types, permanent first.
func (c ContractType) Rank() int {
	if c == ContractPermanent {
		return 0
	}
	return 1
}

type Instructor struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Contract ContractType `json:"contract_type"`
}

type Course struct {
	ID           string `json:"id"`
	ClassID      string `json:"class_id"`
	Name         string `json:"name"`
	InstructorID string `json:"instructor_id"`
}

type Student struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	ClassID string `json:"class_id,omitempty"`
}
