package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"medicapp-sync/internal/domain"

	"go.uber.org/zap"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// Manager fans sync-status and session updates out to every connected UI
// client and routes inbound messages to the handler.
type Manager struct {
	clients        map[string]*Client
	clientsMutex   sync.RWMutex
	Register       chan *Client
	Unregister     chan *Client
	HandleMessage  chan *ClientMessage
	maxClients     int
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	messageHandler MessageHandler
	logger         *zap.Logger
}

type MessageHandler interface {
	HandleWebSocketMessage(client *Client, msg *Message) error
}

func NewManager(maxClients int, writeWait, pongWait, pingPeriod time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		clients:       make(map[string]*Client),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		HandleMessage: make(chan *ClientMessage),
		maxClients:    maxClients,
		writeWait:     writeWait,
		pongWait:      pongWait,
		pingPeriod:    pingPeriod,
		logger:        logger,
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

func (m *Manager) Run() {
	for {
		select {
		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if len(m.clients) >= m.maxClients {
		m.logger.Warn("max websocket clients reached, rejecting", zap.String("client", client.ID))
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.logger.Info("websocket client registered", zap.String("client", client.ID))
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		close(client.Send)
		m.logger.Info("websocket client unregistered", zap.String("client", client.ID))
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.logger.Warn("unreadable websocket message", zap.Error(err))
		return
	}

	if m.messageHandler != nil {
		if err := m.messageHandler.HandleWebSocketMessage(clientMsg.Client, &msg); err != nil {
			m.logger.Warn("websocket message handling failed", zap.Error(err))
		}
	}
}

// Broadcast sends a message to every connected client. Clients with a full
// send buffer are skipped, not blocked on.
func (m *Manager) Broadcast(message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	for _, client := range m.clients {
		select {
		case client.Send <- messageBytes:
		default:
			m.logger.Warn("client send buffer full, dropping message", zap.String("client", client.ID))
		}
	}

	return nil
}

func (m *Manager) SendToClient(client *Client, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case client.Send <- messageBytes:
	default:
		m.logger.Warn("client send buffer full, dropping message", zap.String("client", client.ID))
	}

	return nil
}

// NotifySyncStatus implements the sync engine's status notifier.
func (m *Manager) NotifySyncStatus(status domain.SyncStatus) {
	msg, err := NewMessage(TypeSyncStatus, &SyncStatusPayload{
		PendingChanges: status.PendingChanges,
		IsOnline:       status.IsOnline,
	})
	if err != nil {
		return
	}
	_ = m.Broadcast(msg)
}

// NotifySession pushes a session change to every client.
func (m *Manager) NotifySession(user *domain.SessionUser) {
	msg, err := NewMessage(TypeSession, &SessionPayload{
		Authenticated: user != nil,
		User:          user,
	})
	if err != nil {
		return
	}
	_ = m.Broadcast(msg)
}
