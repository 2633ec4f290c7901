package ws

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/voicememo/internal/domain"
	"github.com/Vovarama1992/voicememo/internal/models"
	"github.com/Vovarama1992/voicememo/internal/ports"
)

// WSHandler streams a session's state. The first frame is the current
// snapshot, sent to the new connection only; the client may send permission
// reports back.
func WSHandler(hub *Hub, sessions ports.SessionService, log *logger.ZapLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("sessionID")
		if sessionID == "" {
			http.Error(w, "missing sessionID", http.StatusBadRequest)
			return
		}

		if _, err := sessions.Get(r.Context(), sessionID); err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Log(logger.LogEntry{
				Level:   "warn",
				Message: "ws upgrade failed",
				Error:   err,
				Fields:  map[string]any{"sessionID": sessionID},
			})
			return
		}

		client := hub.Register(sessionID, conn)
		defer hub.Unregister(client)

		err = sessions.Observe(r.Context(), sessionID, func(snap models.SessionSnapshot) {
			first, _ := json.Marshal(Message{Type: MsgState, SessionID: sessionID, Session: &snap})
			client.Send(first)
		})
		if err != nil {
			return
		}

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var msg Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				reply(client, "bad json")
				continue
			}

			switch msg.Type {
			case MsgPermission:
				if msg.Granted == nil {
					reply(client, "granted is required")
					continue
				}
				if _, err := sessions.SetPermission(r.Context(), sessionID, *msg.Granted); err != nil {
					reply(client, err.Error())
				}
			default:
				reply(client, "unknown message type")
			}
		}
	}
}

func reply(c *Client, text string) {
	b, _ := json.Marshal(Message{Type: MsgError, SessionID: c.room, Error: text})
	c.Send(b)
}
