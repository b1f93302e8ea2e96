package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/xhad/readaloud/pkg/pipeline"
)

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	ws := &wsConn{conn: conn}

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer conn.Close()
	defer wg.Wait()
	defer cancel()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.DebugContext(ctx, "websocket read ended", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			s.sendMessage(ctx, ws, Message{Type: "error", Content: "invalid message"})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, ws, msg)
		}()
	}
}

func (s *Server) handleMessage(ctx context.Context, ws *wsConn, msg Message) {
	if msg.Type != "convert" {
		s.sendMessage(ctx, ws, Message{Type: "error", Content: fmt.Sprintf("unknown message type %q", msg.Type)})
		return
	}

	url := strings.TrimSpace(msg.Content)
	if url == "" {
		s.sendMessage(ctx, ws, Message{Type: "error", Content: "missing url"})
		return
	}

	s.sendMessage(ctx, ws, Message{Type: "status", Content: fmt.Sprintf("Processing URL: %s", url)})

	record, err := s.converter.Convert(ctx, url, func(p pipeline.Progress) {
		var content string
		switch p.Stage {
		case pipeline.StageSegmented:
			content = fmt.Sprintf("Split article into %d chunks", p.Total)
		case pipeline.StageSynthesized:
			content = fmt.Sprintf("Synthesized %d/%d chunks", p.Done, p.Total)
		default:
			content = string(p.Stage)
		}
		s.sendMessage(ctx, ws, Message{Type: "progress", Content: content, Data: p})
	})
	if err != nil {
		s.sendMessage(ctx, ws, Message{Type: "error", Content: err.Error()})
		return
	}

	s.sendMessage(ctx, ws, Message{Type: "response", Content: record.Path, Data: record})
}

func (s *Server) sendMessage(ctx context.Context, ws *wsConn, msg Message) {
	if err := ws.send(msg); err != nil {
		s.logger.DebugContext(ctx, "failed to send websocket message", "error", err)
	}
}
