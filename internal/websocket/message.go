package websocket

import (
	"encoding/json"
	"time"

	"medicapp-sync/internal/domain"
)

type MessageType string

const (
	TypeSyncStatus MessageType = "sync_status"
	TypeSession    MessageType = "session"
	TypeForceSync  MessageType = "force_sync"
	TypeAck        MessageType = "ack"
	TypePing       MessageType = "ping"
	TypePong       MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type SyncStatusPayload struct {
	PendingChanges int  `json:"pending_changes"`
	IsOnline       bool `json:"is_online"`
}

type SessionPayload struct {
	Authenticated bool                `json:"authenticated"`
	User          *domain.SessionUser `json:"user,omitempty"`
}

type AckPayload struct {
	MessageID string `json:"message_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
