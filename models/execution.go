package models

import "time"

// AttemptOutcome is the result of a single backend invocation
type AttemptOutcome string

const (
	AttemptSucceeded AttemptOutcome = "success"
	AttemptFailed    AttemptOutcome = "failed"
	// AttemptAborted marks an attempt stopped by client cancellation
	AttemptAborted AttemptOutcome = "aborted"
)

// ExecutionAttempt records one backend invocation made for a request
type ExecutionAttempt struct {
	Index         int            `json:"index"`
	Model         string         `json:"model"`
	Outcome       AttemptOutcome `json:"outcome"`
	PartialOutput bool           `json:"partial_output"`
	Err           error          `json:"-"`
	Duration      time.Duration  `json:"duration"`
}

// ErrorMessage returns the attempt error text, or "" on success
func (a ExecutionAttempt) ErrorMessage() string {
	if a.Err == nil {
		return ""
	}
	return a.Err.Error()
}
