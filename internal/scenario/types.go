// Package scenario describes end-to-end checks and runs them against a
// browser session, one state at a time.
package scenario

import (
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/lancet/internal/interaction"
	"github.com/xkilldash9x/lancet/internal/locator"
)

// Polarity says whether an assertion expects its element to be shown or gone.
type Polarity string

const (
	Visible Polarity = "visible"
	Absent  Polarity = "absent"
)

// Step is one user action. The locator is resolved right before the action
// runs, after the settle delay.
type Step struct {
	// Intent is the human readable label used in logs and failure reasons.
	Intent  string
	Locator locator.Locator
	Action  interaction.Action
	// Timeout bounds the action. Zero uses the runner default.
	Timeout time.Duration
	// Settle is the pause before the step. Nil uses the runner default;
	// a zero value disables it.
	Settle *time.Duration
	// Name labels the file a screenshot step writes.
	Name string
}

// Assertion is the terminal check of a scenario.
type Assertion struct {
	Locator  locator.Locator
	Polarity Polarity
	// Timeout bounds the check. Zero uses the runner default.
	Timeout time.Duration
	// Description is the failure reason reported when the check does not hold.
	Description string
	// SuspectPolarity marks an assertion whose expectation reads backwards,
	// for example waiting for an error message to be visible.
	SuspectPolarity bool
}

// Scenario is an ordered list of steps followed by one assertion.
type Scenario struct {
	Name        string
	ID          string
	Description string
	// URL is resolved against the configured target. Empty means the target itself.
	URL               string
	NavigationTimeout time.Duration
	ReadinessTimeout  time.Duration
	// Hold keeps a passing session open before cleanup. Nil uses the runner default.
	Hold      *time.Duration
	Steps     []Step
	Assertion Assertion
	// Source is the file the scenario was loaded from, or "builtin".
	Source string
}

// Label prefixes the name with the ID when one is set.
func (s *Scenario) Label() string {
	if s.ID != "" {
		return s.ID + " " + s.Name
	}
	return s.Name
}

// ErrorCode classifies why a run failed.
type ErrorCode string

const (
	CodeAcquisitionFailure ErrorCode = "ACQUISITION_FAILURE"
	CodeNavigationFailure  ErrorCode = "NAVIGATION_FAILURE"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeAmbiguousIndex     ErrorCode = "AMBIGUOUS_INDEX"
	CodeInteractionTimeout ErrorCode = "INTERACTION_TIMEOUT"
	CodeAssertionMismatch  ErrorCode = "ASSERTION_MISMATCH"
	CodeInternalError      ErrorCode = "INTERNAL_ERROR"
)

// Error is the failure of a scenario run. Step is the 0-based index of the
// failing step, or -1 when the failure is not tied to a step.
type Error struct {
	Code    ErrorCode
	Step    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternalError when there is none.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternalError
}

// stepError classifies a failed step by the sentinel it wraps.
func stepError(index int, step Step, err error) *Error {
	code := CodeInternalError
	switch {
	case errors.Is(err, locator.ErrNotFound):
		code = CodeNotFound
	case errors.Is(err, locator.ErrAmbiguousIndex):
		code = CodeAmbiguousIndex
	case errors.Is(err, interaction.ErrInteractionTimeout):
		code = CodeInteractionTimeout
	}
	return &Error{
		Code:    code,
		Step:    index,
		Message: fmt.Sprintf("step %d (%s) failed", index+1, step.label()),
		Err:     err,
	}
}

func (s Step) label() string {
	if s.Intent != "" {
		return s.Intent
	}
	if s.Action.Kind.NeedsElement() {
		return fmt.Sprintf("%s %s", s.Action, s.Locator)
	}
	return s.Action.String()
}
