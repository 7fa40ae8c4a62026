package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xhad/veritas/pkg/research"
)

// Message is one frame of the WebSocket protocol.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Content string          `json:"content"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type chatOptions struct {
	UseResearch bool   `json:"useResearch"`
	FileURL     string `json:"fileUrl"`
}

var stageStatus = map[research.Stage]string{
	research.StageIngest:   "Processing document",
	research.StageEvidence: "Gathering evidence",
	research.StageGenerate: "Generating response",
}

// wsConn serializes writes; gorilla connections allow one writer at a time.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	c := &wsConn{conn: conn}
	conn.SetReadLimit(maxBodyBytes)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Error reading message", zap.Error(err))
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendMessage(c, Message{Type: "error", Content: "Malformed message"})
			continue
		}

		switch msg.Type {
		case "chat":
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.handleChatMessage(ctx, c, msg)
			}()
		case "ping":
			s.sendMessage(c, Message{Type: "pong"})
		default:
			s.sendMessage(c, Message{Type: "error", Content: "Unsupported message type"})
		}
	}
}

func (s *Server) handleChatMessage(ctx context.Context, c *wsConn, msg inboundMessage) {
	var opts chatOptions
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &opts); err != nil {
			s.sendMessage(c, Message{Type: "error", Content: "Malformed message"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	req := research.Request{Message: msg.Content, UseResearch: opts.UseResearch, FileURL: opts.FileURL}
	resp, err := s.answerer.RunWithProgress(ctx, req, func(stage research.Stage) {
		s.sendMessage(c, Message{Type: "status", Content: stageStatus[stage]})
	})
	if err != nil {
		_, text := s.classify(err)
		s.sendMessage(c, Message{Type: "error", Content: text})
		return
	}

	s.sendMessage(c, Message{Type: "response", Content: resp.Content, Data: resp})
}

func (s *Server) sendMessage(c *wsConn, msg Message) {
	if err := c.send(msg); err != nil {
		s.logger.Debug("Error sending message", zap.Error(err))
	}
}
