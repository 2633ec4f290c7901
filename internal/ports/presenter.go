package ports

import "github.com/Vovarama1992/voicememo/internal/models"

type Presenter interface {
	PublishState(snapshot models.SessionSnapshot)
	// RecordingSaved is a one-way notification, nothing is expected back.
	RecordingSaved(sessionID, name string)
}
