package models

import (
	"fmt"
	"net/http"
)

type UploadResult struct {
	Transcript string `json:"transcript"`
	Size       int64  `json:"size"`
}

type UploadErrorKind int

const (
	UploadErrTransport UploadErrorKind = iota
	UploadErrStatus
	UploadErrParse
)

func (k UploadErrorKind) String() string {
	switch k {
	case UploadErrTransport:
		return "transport"
	case UploadErrStatus:
		return "status"
	case UploadErrParse:
		return "parse"
	default:
		return "unknown"
	}
}

// UploadError is the normalized failure of a single upload attempt.
// Message is already human-readable and safe to show to the user.
type UploadError struct {
	Kind       UploadErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *UploadError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case UploadErrTransport:
		return "network error"
	case UploadErrStatus:
		return fmt.Sprintf("server responded with status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	default:
		return "could not parse server response"
	}
}

func (e *UploadError) Unwrap() error { return e.Err }
