package models

import "encoding/json"

type OutcomeKind int

const (
	OutcomeNotStarted OutcomeKind = iota
	OutcomePending
	OutcomeSuccess
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNotStarted:
		return "not_started"
	case OutcomePending:
		return "pending"
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// UploadOutcome is a tagged result. Build it only through the constructors
// below so that payload fields always match the kind.
type UploadOutcome struct {
	kind       OutcomeKind
	transcript string
	sizeBytes  int64
	message    string
}

func NotStartedOutcome() UploadOutcome { return UploadOutcome{kind: OutcomeNotStarted} }
func PendingOutcome() UploadOutcome    { return UploadOutcome{kind: OutcomePending} }

func SuccessOutcome(res UploadResult) UploadOutcome {
	return UploadOutcome{kind: OutcomeSuccess, transcript: res.Transcript, sizeBytes: res.Size}
}

func FailureOutcome(message string) UploadOutcome {
	return UploadOutcome{kind: OutcomeFailure, message: message}
}

func (o UploadOutcome) Kind() OutcomeKind  { return o.kind }
func (o UploadOutcome) IsPending() bool    { return o.kind == OutcomePending }
func (o UploadOutcome) Transcript() string { return o.transcript }
func (o UploadOutcome) SizeBytes() int64   { return o.sizeBytes }
func (o UploadOutcome) Message() string    { return o.message }

type outcomeJSON struct {
	Status     string  `json:"status"`
	Transcript *string `json:"transcript,omitempty"`
	SizeBytes  *int64  `json:"sizeBytes,omitempty"`
	Message    *string `json:"message,omitempty"`
}

func (o UploadOutcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{Status: o.kind.String()}
	switch o.kind {
	case OutcomeSuccess:
		out.Transcript = &o.transcript
		out.SizeBytes = &o.sizeBytes
	case OutcomeFailure:
		out.Message = &o.message
	}
	return json.Marshal(out)
}
