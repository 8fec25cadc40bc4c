package server

import (
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"baccarat/internal/game"
)

// clientMessage is any inbound websocket frame. Amount stays a json.Number
// so fractional stakes are rejected instead of truncated.
type clientMessage struct {
	Type   string      `json:"type"`
	Side   game.Side   `json:"side"`
	Amount json.Number `json:"amount"`
	Name   string      `json:"name"`
}

// tableWebSocketHandler seats one participant for the lifetime of the
// connection. Closing the connection leaves the table.
func (s *FiberServer) tableWebSocketHandler(conn *websocket.Conn) {
	p := s.engine.Connect()
	logger := s.logger.With(zap.String("participant_id", p.ID))
	logger.Info("websocket connected", zap.String("remote", conn.RemoteAddr().String()))

	s.hub.RegisterClient(conn, p.ID)
	defer func() {
		s.engine.Disconnect(p.ID)
		s.hub.UnregisterClient(p.ID)
	}()

	s.hub.SendTo(p.ID, game.WSMessage{Type: "welcome", Data: p})
	s.hub.SendTo(p.ID, game.WSMessage{Type: "initial_state", Data: s.engine.Snapshot()})

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			logger.Info("websocket closed", zap.Error(err))
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if reply, ok := s.handleClientMessage(p.ID, message); ok {
			s.hub.SendTo(p.ID, reply)
		}
	}
}

// handleClientMessage applies one inbound frame and returns the reply for
// the sender, if any. Unknown message types are ignored.
func (s *FiberServer) handleClientMessage(participantID string, raw []byte) (game.WSMessage, bool) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return game.WSMessage{Type: "error", Data: "malformed message"}, true
	}

	switch msg.Type {
	case "place_bet":
		amount, err := msg.Amount.Int64()
		if err != nil {
			amount = 0
		}
		resp := s.engine.PlaceWager(participantID, game.NormalizeSide(msg.Side), amount)
		return game.WSMessage{Type: "bet_result", Data: resp}, true

	case "set_name":
		if err := s.engine.SetDisplayName(participantID, msg.Name); err != nil {
			return game.WSMessage{Type: "error", Data: err.Error()}, true
		}
		return game.WSMessage{}, false

	case "ping":
		return game.WSMessage{Type: "pong"}, true
	}
	return game.WSMessage{}, false
}
