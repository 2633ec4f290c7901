package ws

import (
	"context"
	"encoding/json"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/voicememo/internal/ports"
)

// BrowserCapture drives a MediaRecorder running in the client. The server
// only tells the page when to start and stop; the page posts fragments back
// over HTTP and reports microphone permission itself.
type BrowserCapture struct {
	hub *Hub
	log *logger.ZapLogger
}

func NewBrowserCapture(hub *Hub, log *logger.ZapLogger) *BrowserCapture {
	return &BrowserCapture{hub: hub, log: log}
}

var _ ports.CaptureFacility = (*BrowserCapture)(nil)

// CheckPermission is always false: only the page can ask for the microphone.
func (b *BrowserCapture) CheckPermission(ctx context.Context) (bool, error) {
	return false, nil
}

// Start tells the page to record; it should post fragments with ?take=<take>.
func (b *BrowserCapture) Start(ctx context.Context, sessionID string, take int, sink ports.FragmentSink) error {
	b.command(sessionID, "start", take)
	return nil
}

func (b *BrowserCapture) Stop(sessionID string, take int) error {
	b.command(sessionID, "stop", take)
	return nil
}

func (b *BrowserCapture) command(sessionID, action string, take int) {
	raw, _ := json.Marshal(Message{Type: MsgCapture, SessionID: sessionID, Action: action, Take: take})
	if b.hub.SendToRoom(sessionID, raw) == 0 {
		b.log.Log(logger.LogEntry{
			Level:   "warn",
			Message: "capture command not delivered",
			Fields:  map[string]any{"sessionID": sessionID, "action": action, "take": take},
		})
	}
}
