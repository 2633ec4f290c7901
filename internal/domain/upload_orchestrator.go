package domain

import "github.com/Vovarama1992/voicememo/internal/models"

// UploadOrchestrator drives one session's UploadOutcome around a single
// upload call: NotStarted -> Pending -> Success | Failure.
type UploadOrchestrator struct {
	outcome models.UploadOutcome
	attempt int
}

func NewUploadOrchestrator() *UploadOrchestrator {
	return &UploadOrchestrator{outcome: models.NotStartedOutcome()}
}

func (o *UploadOrchestrator) Outcome() models.UploadOutcome { return o.outcome }
func (o *UploadOrchestrator) InFlight() bool               { return o.outcome.IsPending() }

// Begin enters Pending and drops any previous result.
func (o *UploadOrchestrator) Begin() (int, error) {
	if o.outcome.IsPending() {
		return 0, ErrUploadInFlight
	}
	o.attempt++
	o.outcome = models.PendingOutcome()
	return o.attempt, nil
}

func (o *UploadOrchestrator) Resolve(attempt int, res models.UploadResult) bool {
	if !o.current(attempt) {
		return false
	}
	o.outcome = models.SuccessOutcome(res)
	return true
}

func (o *UploadOrchestrator) Reject(attempt int, err error) bool {
	if !o.current(attempt) {
		return false
	}
	msg := "upload failed"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	o.outcome = models.FailureOutcome(msg)
	return true
}

// Reset returns to NotStarted unless an upload is still running.
func (o *UploadOrchestrator) Reset() {
	if o.outcome.IsPending() {
		return
	}
	o.outcome = models.NotStartedOutcome()
}

func (o *UploadOrchestrator) current(attempt int) bool {
	return o.outcome.IsPending() && attempt == o.attempt
}
