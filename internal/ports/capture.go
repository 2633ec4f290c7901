package ports

import "context"

// FragmentSink receives captured audio fragments in arrival order.
type FragmentSink func(fragment []byte)

// CaptureFacility records one take at a time per session. Start and Stop
// carry the take number so a late Stop never reaches a newer take.
type CaptureFacility interface {
	CheckPermission(ctx context.Context) (bool, error)
	Start(ctx context.Context, sessionID string, take int, sink FragmentSink) error
	Stop(sessionID string, take int) error
}
