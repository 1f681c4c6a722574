package scenario

import (
	"time"

	"github.com/xkilldash9x/lancet/internal/readiness"
)

// State is a phase of a scenario run.
type State string

const (
	StateInitializing State = "Initializing"
	StateNavigating   State = "Navigating"
	StateRunningSteps State = "RunningSteps"
	StateAsserting    State = "Asserting"
	StatePassed       State = "Passed"
	StateFailed       State = "Failed"
	StateCleanup      State = "Cleanup"
	StateDone         State = "Done"
)

// Status is the verdict of a run.
type Status string

const (
	StatusPassed Status = "passed"
	// StatusFailed is a failure with a reason.
	StatusFailed Status = "failed"
	// StatusTimedOut is a failure because an action never became possible.
	StatusTimedOut Status = "timed_out"
)

// StepResult records one executed step.
type StepResult struct {
	Index   int           `json:"index"`
	Intent  string        `json:"intent"`
	Action  string        `json:"action"`
	Locator string        `json:"locator,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Error   string        `json:"error,omitempty"`
}

// ReadinessSummary counts the readiness waits done after navigation.
type ReadinessSummary struct {
	Documents int `json:"documents"`
	Ready     int `json:"ready"`
	TimedOut  int `json:"timed_out"`
	Errored   int `json:"errored"`
}

func summarize(rep readiness.Report) ReadinessSummary {
	return ReadinessSummary{
		Documents: len(rep.Entries),
		Ready:     rep.Count(readiness.Ready),
		TimedOut:  rep.Count(readiness.TimedOut),
		Errored:   rep.Count(readiness.Errored),
	}
}

// Outcome is the only externally observable result of a run. Exactly one
// is produced per run.
type Outcome struct {
	Scenario   string           `json:"scenario"`
	ScenarioID string           `json:"scenario_id,omitempty"`
	RunID      string           `json:"run_id"`
	SessionID  string           `json:"session_id,omitempty"`
	Status     Status           `json:"status"`
	Code       ErrorCode        `json:"code,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	States     []State          `json:"states"`
	Steps      []StepResult     `json:"steps,omitempty"`
	Readiness  ReadinessSummary `json:"readiness"`
	Warnings   []string         `json:"warnings,omitempty"`
	Artifacts  []string         `json:"artifacts,omitempty"`
	Started    time.Time        `json:"started"`
	Duration   time.Duration    `json:"duration_ns"`

	// Err is the typed failure; nil when the run passed.
	Err *Error `json:"-"`
}

// Passed reports whether the run passed.
func (o *Outcome) Passed() bool { return o.Status == StatusPassed }

func (o *Outcome) enter(s State) { o.States = append(o.States, s) }

func (o *Outcome) warn(msg string) { o.Warnings = append(o.Warnings, msg) }

func (o *Outcome) fail(e *Error) {
	o.Err = e
	o.Code = e.Code
	o.Reason = e.Error()
	o.Status = StatusFailed
	if e.Code == CodeInteractionTimeout {
		o.Status = StatusTimedOut
	}
}
