package queue

import "github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/models"

const (
	ActionCallNext        = "call_next"
	ActionStartProcessing = "start_processing"
	ActionComplete        = "complete"
	ActionHold            = "hold"
	ActionReturnToQueue   = "return_to_queue"
)

var anyStatus = []string{
	models.StatusWaiting,
	models.StatusCalling,
	models.StatusProcessing,
	models.StatusHold,
	models.StatusCompleted,
}

// transitionMap lists the statuses each action may start from.
// Only call_next is guarded; the per-entry actions are callable from
// any status, matching the system this replaces. Tightening them is a
// behavior change, not a cleanup.
var transitionMap = map[string][]string{
	ActionCallNext:        {models.StatusWaiting},
	ActionStartProcessing: anyStatus,
	ActionComplete:        anyStatus,
	ActionHold:            anyStatus,
	ActionReturnToQueue:   anyStatus,
}

// resultStatus is the status an entry lands in after each action.
var resultStatus = map[string]string{
	ActionCallNext:        models.StatusCalling,
	ActionStartProcessing: models.StatusProcessing,
	ActionComplete:        models.StatusCompleted,
	ActionHold:            models.StatusHold,
	ActionReturnToQueue:   models.StatusWaiting,
}

func CanApply(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// ResultStatus returns the status an action produces, or "" for an
// unknown action.
func ResultStatus(action string) string {
	return resultStatus[action]
}

// RoomAllowed reports whether a status may carry a room assignment.
// Room is populated iff the entry is calling or processing.
func RoomAllowed(status string) bool {
	return status == models.StatusCalling || status == models.StatusProcessing
}
