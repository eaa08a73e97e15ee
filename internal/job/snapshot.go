package job

import (
	"fmt"

	"github.com/hpungsan/reel/internal/errors"
)

// Snapshot is a point-in-time copy of a job, safe to serialize.
type Snapshot struct {
	ID           string           `json:"id"`
	Slot         Slot             `json:"slot"`
	TargetClipID string           `json:"target_clip_id,omitempty"`
	State        State            `json:"state"`
	Progress     *Progress        `json:"progress,omitempty"`
	Status       string           `json:"status,omitempty"`
	Result       string           `json:"result,omitempty"`
	ErrorCode    errors.ErrorCode `json:"error_code,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    int64            `json:"created_at"`
}

// Percent returns the rounded progress percentage, 100 on success, else 0.
func (s Snapshot) Percent() int {
	if s.State == StateSucceeded {
		return 100
	}
	if s.Progress == nil {
		return 0
	}
	return s.Progress.Percent()
}

// Describe renders the job state the way the progress indicator shows it.
func (s Snapshot) Describe() string {
	switch s.State {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting to server..."
	case StateInProgress:
		if s.Progress == nil {
			return "Connecting to server..."
		}
		return fmt.Sprintf("Step %g of %g", s.Progress.Completed, s.Progress.Total)
	case StateSucceeded:
		return "Completed"
	case StateFailed:
		if s.ErrorCode == ErrCancelled {
			return "Cancelled: " + s.ErrorMessage
		}
		return "Failed: " + s.ErrorMessage
	default:
		return string(s.State)
	}
}
