package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/csv-agent/backend/internal/models"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WebSocket message types for the ask protocol
const (
	// Client -> Server messages
	MsgTypeAsk  = "ask"
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeThinking  = "thinking"
	MsgTypeQuery     = "query"
	MsgTypeExecuting = "executing"
	MsgTypeResult    = "result"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// WSMessage is the envelope for all WebSocket traffic
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Ask request payload
type WSAskPayload struct {
	Question string `json:"question"`
}

// Thinking stage payload
type WSThinkingPayload struct {
	Thinking string `json:"thinking"`
}

// Query stage payload
type WSQueryPayload struct {
	Query    *models.QuerySpec `json:"query"`
	RawQuery string            `json:"rawQuery"`
}

// Result stage payload
type WSResultPayload struct {
	Result    *models.ResultSet `json:"result"`
	ElapsedMs int64             `json:"elapsedMs"`
}

// WebSocket error response
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WebSocketHandler streams the stages of the question cycle so the frontend
// can show the reasoning trace as it happens
type WebSocketHandler struct {
	manager  DatasetManager
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket ask handler
func NewWebSocketHandler(manager DatasetManager) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
		},
	}
}

// HandleWebSocket upgrades the connection and answers questions until the
// client disconnects
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	fmt.Println("[WebSocket] Client connected for ask")

	// Send welcome message
	wsh.sendMessage(ws, WSMessage{
		Type:      "connected",
		Timestamp: time.Now().UnixMilli(),
	})

	ctx := c.Request().Context()

	// Main message loop
	for {
		var msg WSMessage
		err := ws.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				fmt.Printf("[WebSocket] Connection error: %v\n", err)
			}
			break
		}

		switch msg.Type {
		case MsgTypePing:
			// Respond with pong to keep connection alive
			wsh.sendMessage(ws, WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		case MsgTypeAsk:
			wsh.handleAsk(ctx, ws, msg)
		default:
			wsh.sendError(ws, msg.ID, NewBadRequestError("unknown message type: "+msg.Type, nil))
		}
	}

	fmt.Println("[WebSocket] Client disconnected")
	return nil
}

// handleAsk runs one question cycle, streaming each stage as it completes
func (wsh *WebSocketHandler) handleAsk(ctx context.Context, ws *websocket.Conn, msg WSMessage) {
	var payload WSAskPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, msg.ID, NewBadRequestError("invalid ask payload", err))
		return
	}
	if payload.Question == "" {
		wsh.sendError(ws, msg.ID, NewValidationError("question"))
		return
	}

	start := time.Now()

	tr, err := wsh.manager.Translate(ctx, payload.Question)
	if err != nil {
		wsh.sendError(ws, msg.ID, toAPIError(err))
		return
	}

	if tr.Thinking != "" {
		wsh.sendMessage(ws, WSMessage{
			Type:      MsgTypeThinking,
			ID:        msg.ID,
			Timestamp: time.Now().UnixMilli(),
			Payload:   mustJSON(WSThinkingPayload{Thinking: tr.Thinking}),
		})
	}

	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeQuery,
		ID:        msg.ID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   mustJSON(WSQueryPayload{Query: tr.Query, RawQuery: tr.Raw}),
	})

	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeExecuting,
		ID:        msg.ID,
		Timestamp: time.Now().UnixMilli(),
	})

	result, err := wsh.manager.Execute(ctx, tr)
	if err != nil {
		wsh.sendError(ws, msg.ID, toAPIError(err))
		return
	}

	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeResult,
		ID:        msg.ID,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSResultPayload{
			Result:    result,
			ElapsedMs: time.Since(start).Milliseconds(),
		}),
	})
}

// Helper methods

func (wsh *WebSocketHandler) sendMessage(ws *websocket.Conn, msg WSMessage) {
	if err := ws.WriteJSON(msg); err != nil {
		fmt.Printf("[WebSocket] Failed to send message: %v\n", err)
	}
}

func (wsh *WebSocketHandler) sendError(ws *websocket.Conn, id string, apiErr *APIError) {
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeError,
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSErrorResponse{
			Message: apiErr.Message,
			Code:    apiErr.Code,
			Details: apiErr.Details,
		}),
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
