package models

import "fmt"

type SessionState int

const (
	SessionIdle SessionState = iota
	SessionRecording
	SessionStopped
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionRecording:
		return "recording"
	case SessionStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SessionState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = SessionIdle
	case "recording":
		*s = SessionRecording
	case "stopped":
		*s = SessionStopped
	default:
		return fmt.Errorf("unknown session state %q", b)
	}
	return nil
}

// SessionSnapshot is what the presentation layer sees of one recording session.
type SessionSnapshot struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	State             SessionState  `json:"state"`
	ElapsedSeconds    int           `json:"elapsedSeconds"`
	Take              int           `json:"take"`
	PermissionGranted bool          `json:"permissionGranted"`
	HasAudio          bool          `json:"hasAudio"`
	AudioSize         int           `json:"audioSize"`
	AudioMIMEType     string        `json:"audioMimeType,omitempty"`
	Outcome           UploadOutcome `json:"outcome"`
	Downloaded        bool          `json:"downloaded"`
}
