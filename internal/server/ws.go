package server

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSMessage is the frame exchanged on the chat socket. Inbound frames
// carry type "message"; outbound frames are "token", "reply" or "error".
type WSMessage struct {
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Error    string `json:"error,omitempty"`
}

// wsChatHandler streams a turn over a websocket: one token frame per
// delta, a terminal reply frame, then the next inbound message
func (s *Server) wsChatHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	userID := r.URL.Query().Get("user")

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != "message" || msg.Content == "" {
			continue
		}

		user := msg.UserID
		if user == "" {
			user = userID
		}
		if user == "" {
			conn.WriteJSON(WSMessage{Type: "error", Error: "userId required"})
			continue
		}

		req := &ChatRequest{UserID: user, Message: msg.Content}

		// frames are written from this loop only; the token callback runs
		// inside runTurn before the reply frame is sent
		res, _, err := s.runTurn(r.Context(), req, true, func(delta string) {
			conn.WriteJSON(WSMessage{Type: "token", Content: delta})
		})
		if err != nil {
			s.logger.Warn("websocket turn failed", "user", user, "error", err)
			conn.WriteJSON(WSMessage{Type: "error", Error: err.Error()})
			continue
		}

		s.writeback(user, msg.Content, res.Reply)

		conn.WriteJSON(WSMessage{
			Type:     "reply",
			Content:  res.Reply,
			Provider: res.Provider,
			Model:    res.Model,
		})
	}
}
