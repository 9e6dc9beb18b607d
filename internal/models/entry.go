package models

import "time"

// QueueEntry is one patient's place in a department queue for a single
// stage. Entries are never deleted; completed is the terminal status.
type QueueEntry struct {
	EntryID      string    `json:"entry_id"`
	PatientID    string    `json:"patient_id"`
	DepartmentID string    `json:"department_id"`
	Stage        string    `json:"stage"`
	Status       string    `json:"status"`
	Room         *string   `json:"room,omitempty"`
	Emergency    bool      `json:"emergency"`
	OrderKey     OrderKey  `json:"order_key"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	StageOptometrist = "optometrist"
	StageDoctor      = "doctor"
)

const (
	StatusWaiting    = "waiting"
	StatusCalling    = "calling"
	StatusProcessing = "processing"
	StatusHold       = "hold"
	StatusCompleted  = "completed"
)

// ActiveStatuses are the statuses that count toward the one-active-entry
// per (patient, stage) rule. Hold and completed entries are not active.
var ActiveStatuses = []string{StatusWaiting, StatusCalling, StatusProcessing}

func ValidStage(stage string) bool {
	return stage == StageOptometrist || stage == StageDoctor
}

// NextStage returns the stage a patient moves to after completing the
// given one, or "" when the stage is the last in the flow.
func NextStage(stage string) string {
	if stage == StageOptometrist {
		return StageDoctor
	}
	return ""
}
