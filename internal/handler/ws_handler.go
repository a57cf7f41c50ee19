package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"medicapp-sync/internal/service"
	"medicapp-sync/internal/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WebSocketHandler struct {
	manager  *websocket.Manager
	sessions *service.SessionService
	logger   *zap.Logger
	upgrader ws.Upgrader
}

func NewWebSocketHandler(manager *websocket.Manager, sessions *service.SessionService, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		manager:  manager,
		sessions: sessions,
		logger:   logger,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("Authorization")
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}
	}

	if token == "" {
		http.Error(w, "missing authorization token", http.StatusUnauthorized)
		return
	}

	if user := h.sessions.Authenticate(token); user == nil {
		http.Error(w, "invalid or expired session", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := websocket.NewClient(uuid.New().String(), conn, h.manager)
	h.manager.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

// WebSocketMessageHandler reacts to inbound UI messages: a force-sync request
// drains the queue, pings get pongs.
type WebSocketMessageHandler struct {
	sync *service.SyncService
}

func NewWebSocketMessageHandler(sync *service.SyncService) *WebSocketMessageHandler {
	return &WebSocketMessageHandler{sync: sync}
}

func (h *WebSocketMessageHandler) HandleWebSocketMessage(client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypeForceSync:
		return h.handleForceSync(client)

	case websocket.TypePing:
		return h.reply(client, websocket.TypePong, nil)
	}

	return nil
}

func (h *WebSocketMessageHandler) handleForceSync(client *websocket.Client) error {
	if err := h.sync.ForceSync(context.Background()); err != nil {
		return err
	}

	status, err := h.sync.GetSyncStatus()
	if err != nil {
		return err
	}

	return h.reply(client, websocket.TypeSyncStatus, &websocket.SyncStatusPayload{
		PendingChanges: status.PendingChanges,
		IsOnline:       status.IsOnline,
	})
}

func (h *WebSocketMessageHandler) reply(client *websocket.Client, msgType websocket.MessageType, payload interface{}) error {
	msg, err := websocket.NewMessage(msgType, payload)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case client.Send <- raw:
	default:
	}

	return nil
}
