package domain

import (
	"strings"

	"github.com/Vovarama1992/voicememo/internal/models"
)

// CaptureSession is the recording state machine. It has no timers or
// goroutines of its own: ticks and fragments arrive as explicit calls,
// each tagged with the take they belong to.
type CaptureSession struct {
	name       string
	permission bool
	state      models.SessionState
	elapsed    int
	take       int
	mimeType   string

	fragments [][]byte
	audio     *models.AudioObject
}

func NewCaptureSession(mimeType string) *CaptureSession {
	if mimeType == "" {
		mimeType = models.DefaultAudioMIMEType
	}
	return &CaptureSession{
		state:    models.SessionIdle,
		mimeType: mimeType,
	}
}

func (c *CaptureSession) SetName(name string)        { c.name = name }
func (c *CaptureSession) SetPermission(granted bool) { c.permission = granted }

func (c *CaptureSession) Name() string               { return c.name }
func (c *CaptureSession) HasName() bool              { return strings.TrimSpace(c.name) != "" }
func (c *CaptureSession) Permission() bool           { return c.permission }
func (c *CaptureSession) State() models.SessionState { return c.state }
func (c *CaptureSession) Elapsed() int               { return c.elapsed }
func (c *CaptureSession) Take() int                  { return c.take }

// Audio returns the last assembled recording, nil until the first stop.
func (c *CaptureSession) Audio() *models.AudioObject { return c.audio }

// CanStart reports why Start would be refused, or nil.
func (c *CaptureSession) CanStart() error {
	if c.state == models.SessionRecording {
		return ErrAlreadyRecording
	}
	if !c.HasName() {
		return ErrNameRequired
	}
	if !c.permission {
		return ErrPermissionDenied
	}
	return nil
}

// Start begins a new take. On error nothing changes.
func (c *CaptureSession) Start() (int, error) {
	if err := c.CanStart(); err != nil {
		return 0, err
	}

	c.fragments = nil
	c.audio = nil
	c.elapsed = 0
	c.take++
	c.state = models.SessionRecording
	return c.take, nil
}

// Tick advances the elapsed counter by one second of the given take.
func (c *CaptureSession) Tick(take int) bool {
	if c.state != models.SessionRecording || take != c.take {
		return false
	}
	c.elapsed++
	return true
}

// Append buffers a fragment. Fragments for another take or delivered
// outside Recording are dropped and false is returned.
func (c *CaptureSession) Append(take int, fragment []byte) bool {
	if c.state != models.SessionRecording || take != c.take {
		return false
	}
	buf := make([]byte, len(fragment))
	copy(buf, fragment)
	c.fragments = append(c.fragments, buf)
	return true
}

func (c *CaptureSession) Stop() (models.AudioObject, error) {
	if c.state != models.SessionRecording {
		return models.AudioObject{}, ErrNotRecording
	}

	audio := models.NewAudioObject(c.fragments, c.mimeType)
	c.audio = &audio
	c.elapsed = 0
	c.state = models.SessionStopped
	return audio, nil
}
