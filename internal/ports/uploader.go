package ports

import (
	"context"

	"github.com/Vovarama1992/voicememo/internal/models"
)

// Uploader sends one finished recording to the transcription endpoint.
// Failures are returned as *models.UploadError.
type Uploader interface {
	Upload(ctx context.Context, audio models.AudioObject) (models.UploadResult, error)
}
