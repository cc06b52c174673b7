package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Message is the envelope exchanged over /api/ws. Clients send "query" and
// "ping"; the server replies with "status", "response", "error" or "pong".
type Message struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	FileID   string `json:"file_id,omitempty"`
	FileName string `json:"file_name,omitempty"`
	Data     any    `json:"data,omitempty"`
}

const (
	msgQuery    = "query"
	msgPing     = "ping"
	msgStatus   = "status"
	msgResponse = "response"
	msgError    = "error"
	msgPong     = "pong"
)

// handleWebSocket serves queries over one connection. Messages are handled in
// arrival order so that replies never interleave.
func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return nil
	}
	defer conn.Close()

	ctx := c.Request().Context()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read failed", zap.Error(err))
			}
			return nil
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendMessage(conn, Message{Type: msgError, Content: "message is not valid JSON"})
			continue
		}
		s.handleMessage(ctx, conn, msg)
	}
}

func (s *Server) handleMessage(ctx context.Context, conn *websocket.Conn, msg Message) {
	switch msg.Type {
	case msgPing:
		s.sendMessage(conn, Message{Type: msgPong})
	case msgQuery, "":
		entry, err := s.lookup(msg.FileID, msg.FileName)
		if err != nil {
			s.sendError(conn, err)
			return
		}
		s.sendMessage(conn, Message{
			Type:    msgStatus,
			Content: fmt.Sprintf("Analyzing %s", entry.Name),
			FileID:  entry.ID,
		})

		resp, err := s.analyzeEntry(ctx, entry, msg.Content)
		if err != nil {
			s.sendError(conn, err)
			return
		}
		content := resp.Message
		if content == "" {
			content = resp.Caption
		}
		s.sendMessage(conn, Message{
			Type:    msgResponse,
			Content: content,
			FileID:  entry.ID,
			Data:    resp,
		})
	default:
		s.sendMessage(conn, Message{Type: msgError, Content: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

func (s *Server) sendError(conn *websocket.Conn, err error) {
	apiErr := FromError(err)
	s.sendMessage(conn, Message{Type: msgError, Content: apiErr.Message, Data: apiErr})
}

func (s *Server) sendMessage(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		s.log.Warn("websocket write failed", zap.Error(err))
	}
}
