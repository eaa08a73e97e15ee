package job

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hpungsan/reel/internal/errors"
)

// State is the lifecycle state of a generation job.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateInProgress State = "in_progress"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Slot names the single channel a job occupies. At most one live channel exists per slot.
type Slot string

const (
	SlotAvatar Slot = "avatar"
	SlotClip   Slot = "clip"
)

// ErrCancelled is the failure code recorded for cancelled jobs.
const ErrCancelled errors.ErrorCode = "CANCELLED"

// Cancellation reasons.
const (
	ReasonCancelled   = "generation cancelled"
	ReasonClipDeleted = "target clip deleted"
	ReasonNavigated   = "left the composing view"
	ReasonSuperseded  = "superseded by a newer request"
)

// Progress is an incremental step count reported by the backend.
type Progress struct {
	Completed float64 `json:"completed_steps"`
	Total     float64 `json:"total_steps"`
}

// Percent returns round(completed/total*100), or 0 when total is not positive.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return int(math.Round(p.Completed / p.Total * 100))
}

// Job tracks one asynchronous generation request. It is created Idle, and
// every transition after Start is driven by channel events. Terminal jobs
// are never reused; a retry constructs a new Job.
//
// All methods are safe for concurrent use.
type Job struct {
	id           string
	slot         Slot
	targetClipID string
	createdAt    time.Time

	mu         sync.Mutex
	state      State
	progress   *Progress
	status     string
	result     string
	errCode    errors.ErrorCode
	errMessage string
	closer     func()
	listeners  []func(Snapshot)
	done       chan struct{}
}

// New creates an Idle job. targetClipID may be empty for a standalone avatar job.
func New(id string, slot Slot, targetClipID string) *Job {
	return &Job{
		id:           id,
		slot:         slot,
		targetClipID: targetClipID,
		createdAt:    time.Now(),
		state:        StateIdle,
		done:         make(chan struct{}),
	}
}

// ID returns the job id.
func (j *Job) ID() string { return j.id }

// Slot returns the channel slot the job occupies.
func (j *Job) Slot() Slot { return j.slot }

// TargetClipID returns the clip the result applies to, or "".
func (j *Job) TargetClipID() string { return j.targetClipID }

// Done is closed once the job is terminal and its settle hooks have run.
func (j *Job) Done() <-chan struct{} { return j.done }

// SetCloser installs the hook invoked once when the job becomes terminal.
// The channel adapter uses it to close the underlying connection.
func (j *Job) SetCloser(fn func()) {
	j.mu.Lock()
	terminal := j.state.Terminal()
	if !terminal {
		j.closer = fn
	}
	j.mu.Unlock()

	if terminal && fn != nil {
		fn()
	}
}

// OnSettled registers fn to run once with the terminal snapshot. If the job
// is already terminal, fn runs immediately.
func (j *Job) OnSettled(fn func(Snapshot)) {
	j.mu.Lock()
	if !j.state.Terminal() {
		j.listeners = append(j.listeners, fn)
		j.mu.Unlock()
		return
	}
	snap := j.snapshotLocked()
	j.mu.Unlock()
	fn(snap)
}

// Start moves Idle -> Connecting. It fails if the job was already started.
func (j *Job) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != StateIdle {
		return errors.NewInvalidRequest(fmt.Sprintf("job %s already started (%s)", j.id, j.state))
	}
	j.state = StateConnecting
	return nil
}

// OnOpen moves Connecting -> InProgress with no progress yet.
func (j *Job) OnOpen() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != StateConnecting {
		return
	}
	j.state = StateInProgress
	j.progress = nil
}

// OnProgress records progress while InProgress. Values are stored as received,
// without monotonicity checks. Events in any other state are stale and dropped.
func (j *Job) OnProgress(completed, total float64) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != StateInProgress {
		return
	}
	j.progress = &Progress{Completed: completed, Total: total}
}

// OnStatus records an informational status line. It is not a state transition.
func (j *Job) OnStatus(message string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state.Terminal() {
		return
	}
	j.status = message
}

// OnSuccess moves InProgress -> Succeeded with payload.
func (j *Job) OnSuccess(payload string) {
	j.mu.Lock()
	if j.state != StateInProgress {
		j.mu.Unlock()
		return
	}
	j.state = StateSucceeded
	j.result = payload
	j.settleLocked()
}

// OnError moves any non-terminal state to Failed.
func (j *Job) OnError(code errors.ErrorCode, message string) {
	j.fail(code, message)
}

// OnClosed handles a channel close. A close before any terminal event is a failure.
func (j *Job) OnClosed() {
	j.fail(errors.ErrConnection, "connection closed before completion")
}

// Cancel moves any non-terminal state to Failed with a cancellation reason.
func (j *Job) Cancel(reason string) {
	if reason == "" {
		reason = ReasonCancelled
	}
	j.fail(ErrCancelled, reason)
}

func (j *Job) fail(code errors.ErrorCode, message string) {
	j.mu.Lock()
	if j.state.Terminal() {
		j.mu.Unlock()
		return
	}
	if message == "" {
		message = string(code)
	}
	j.state = StateFailed
	j.errCode = code
	j.errMessage = message
	j.settleLocked()
}

// settleLocked must be called with mu held; it releases mu before running hooks.
// Done is closed after the hooks return.
func (j *Job) settleLocked() {
	closer := j.closer
	listeners := j.listeners
	j.closer = nil
	j.listeners = nil
	snap := j.snapshotLocked()
	j.mu.Unlock()

	if closer != nil {
		closer()
	}
	for _, fn := range listeners {
		fn(snap)
	}
	close(j.done)
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Snapshot returns a copy of the job's observable fields.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

func (j *Job) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:           j.id,
		Slot:         j.slot,
		TargetClipID: j.targetClipID,
		State:        j.state,
		Status:       j.status,
		Result:       j.result,
		ErrorCode:    j.errCode,
		ErrorMessage: j.errMessage,
		CreatedAt:    j.createdAt.Unix(),
	}
	if j.progress != nil {
		p := *j.progress
		s.Progress = &p
	}
	return s
}
