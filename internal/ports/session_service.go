package ports

import (
	"context"

	"github.com/Vovarama1992/voicememo/internal/models"
)

type SessionService interface {
	Create(ctx context.Context) (models.SessionSnapshot, error)
	Get(ctx context.Context, id string) (models.SessionSnapshot, error)
	// Observe runs fn with the current snapshot on the session's own loop,
	// ordered with every state published before and after it.
	Observe(ctx context.Context, id string, fn func(models.SessionSnapshot)) error
	List(ctx context.Context) []models.SessionSnapshot
	Close(ctx context.Context, id string) error

	Rename(ctx context.Context, id, name string) (models.SessionSnapshot, error)
	SetPermission(ctx context.Context, id string, granted bool) (models.SessionSnapshot, error)

	Start(ctx context.Context, id string) (models.SessionSnapshot, error)
	Stop(ctx context.Context, id string) (models.SessionSnapshot, error)
	// AppendFragment delivers a fragment for the given take. take <= 0 means
	// the current take.
	AppendFragment(ctx context.Context, id string, take int, fragment []byte) (accepted bool, err error)

	Audio(ctx context.Context, id string) (models.AudioObject, string, error)
	MarkDownloaded(ctx context.Context, id string) (models.SessionSnapshot, error)

	Upload(ctx context.Context, id string) (models.SessionSnapshot, error)
}
