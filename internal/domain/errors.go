package domain

import (
	"errors"

	"github.com/Vovarama1992/voicememo/internal/models"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionClosed    = errors.New("session closed")
	ErrNameRequired     = errors.New("recording name is required")
	ErrPermissionDenied = errors.New("capture permission not granted")
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
	ErrNoAudio          = errors.New("no recorded audio")
	ErrUploadInFlight   = errors.New("upload already in progress")
)

func uploadErrorKind(err error) string {
	var upErr *models.UploadError
	if errors.As(err, &upErr) {
		return upErr.Kind.String()
	}
	return "unknown"
}
