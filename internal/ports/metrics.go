package ports

import "time"

type Metrics interface {
	SessionOpened()
	SessionClosed()
	RecordingCompleted(sizeBytes int)
	FragmentReceived(accepted bool)
	UploadStarted()
	UploadSucceeded(d time.Duration)
	UploadFailed(kind string, d time.Duration)
	HTTPRequest(method, route string, status int, d time.Duration)
}
