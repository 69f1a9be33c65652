package controller

import (
	"github.com/dyluth/docket/internal/arbiter"
	"github.com/dyluth/docket/internal/execute"
	"github.com/dyluth/docket/internal/validate"
)

// State is a step of the run state machine.
type State string

const (
	StateReceived        State = "RECEIVED"
	StateTriggered       State = "TRIGGERED"
	StateClaimsCollected State = "CLAIMS_COLLECTED"
	StateValidated       State = "VALIDATED"
	StateRetryValidated  State = "RETRY_VALIDATED"
	StateApproved        State = "APPROVED"
	StateRejected        State = "REJECTED"
	StateExecuted        State = "EXECUTED"
	StateResult          State = "RESULT"
)

// Phase names where a run ended.
type Phase string

const (
	PhaseApproval  Phase = "approval"
	PhaseExecution Phase = "execution"
	PhaseResult    Phase = "result"
)

// Rejection and failure reasons.
const (
	ReasonValidationFailed = "validation_failed"
	ReasonCapability       = arbiter.ReasonCapability
	ReasonExecutionFailed  = "execution_failed"
	ReasonLockFailed       = "lock_failed"
)

// RunError explains why a run did not succeed.
type RunError struct {
	Reason  string   `json:"reason"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// Report carries the diagnostics of a run.
type Report struct {
	Producers  []string            `json:"producers"`
	Warnings   []string            `json:"warnings,omitempty"`
	Claims     int                 `json:"claims"`
	Validation validate.Results    `json:"validation"`
	Evaluation validate.Evaluation `json:"evaluation"`
	Retried    bool                `json:"retried"`
	Winners    []arbiter.Winner    `json:"winners,omitempty"`
	Violations []arbiter.Violation `json:"violations,omitempty"`
	Fields     map[string]any      `json:"fields,omitempty"`
}

// Envelope is the outcome of one run.
type Envelope struct {
	RunID   string          `json:"run_id"`
	Action  string          `json:"action"`
	Success bool            `json:"success"`
	Phase   Phase           `json:"phase"`
	Result  *execute.Result `json:"result,omitempty"`
	Error   *RunError       `json:"error,omitempty"`
	Trace   []State         `json:"trace"`
	Report  *Report         `json:"report"`
}

// Reached reports whether the run passed through s.
func (e *Envelope) Reached(s State) bool {
	for _, t := range e.Trace {
		if t == s {
			return true
		}
	}
	return false
}

func (e *Envelope) enter(s State) {
	e.Trace = append(e.Trace, s)
}
