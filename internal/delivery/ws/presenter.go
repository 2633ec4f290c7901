package ws

import (
	"encoding/json"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/voicememo/internal/models"
	"github.com/Vovarama1992/voicememo/internal/ports"
)

const (
	MsgState          = "state"
	MsgRecordingSaved = "recording_saved"
	MsgCapture        = "capture"
	MsgPermission     = "permission"
	MsgError          = "error"
)

// Message is the single envelope used in both directions on the socket.
type Message struct {
	Type      string                  `json:"type"`
	SessionID string                  `json:"sessionID,omitempty"`
	Session   *models.SessionSnapshot `json:"session,omitempty"`
	Name      string                  `json:"name,omitempty"`
	Action    string                  `json:"action,omitempty"`
	Take      int                     `json:"take,omitempty"`
	Granted   *bool                   `json:"granted,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

type Presenter struct {
	hub *Hub
	log *logger.ZapLogger
}

func NewPresenter(hub *Hub, log *logger.ZapLogger) *Presenter {
	return &Presenter{hub: hub, log: log}
}

var _ ports.Presenter = (*Presenter)(nil)

func (p *Presenter) PublishState(snapshot models.SessionSnapshot) {
	p.send(snapshot.ID, Message{Type: MsgState, SessionID: snapshot.ID, Session: &snapshot})
}

func (p *Presenter) RecordingSaved(sessionID, name string) {
	p.send(sessionID, Message{Type: MsgRecordingSaved, SessionID: sessionID, Name: name})
}

func (p *Presenter) send(sessionID string, msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		p.log.Log(logger.LogEntry{
			Level:   "error",
			Message: "encode ws message",
			Error:   err,
			Fields:  map[string]any{"sessionID": sessionID, "type": msg.Type},
		})
		return
	}
	p.hub.SendToRoom(sessionID, b)
}
