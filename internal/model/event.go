package model

import "encoding/json"

// Server to client event types.
const (
	EventMessage                = "message"
	EventMessageSent            = "message_sent"
	EventMessagesLoad           = "messages_load"
	EventMessageDelivered       = "message_delivered"
	EventMessagesRead           = "messages_read"
	EventEphemeralKey           = "ephemeral_key"
	EventRatchetKey             = "ratchet_key"
	EventContactRequest         = "contact_request"
	EventContactRequestResponse = "contact_request_response"
	EventContactRemoved         = "contact_removed"
	EventPendingSummary         = "pending_summary"
	EventError                  = "error"
	EventPong                   = "pong"
)

// Client to server operations.
const (
	OpSendMessage     = "send_message"
	OpMessageReceived = "message_received"
	OpMarkRead        = "mark_messages_as_read"
	OpLoadUndelivered = "load_undelivered_messages"
	OpEphemeralKey    = "ephemeral_key"
	OpRatchetKey      = "ratchet_key"
	OpPing            = "ping"
)

type (
	Event struct {
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
		Ref  string `json:"ref,omitempty"`
	}

	Frame struct {
		Op   string          `json:"op"`
		Data json.RawMessage `json:"data,omitempty"`
		Ref  string          `json:"ref,omitempty"`
	}

	MessageEvent struct {
		ID         int64  `json:"id"`
		From       string `json:"from"`
		Kind       Kind   `json:"kind"`
		Ciphertext []byte `json:"ciphertext"`
		CreatedAt  int64  `json:"created_at"`
	}

	EphemeralKeyEvent struct {
		ID           int64   `json:"id"`
		From         string  `json:"from"`
		EphemeralKey []byte  `json:"ephemeral_key"`
		PrekeyID     *uint32 `json:"prekey_id"`
	}

	RatchetKeyEvent struct {
		From       string `json:"from"`
		RatchetKey []byte `json:"ratchet_key"`
	}

	ContactEvent struct {
		From      string        `json:"from"`
		RequestID int64         `json:"request_id,omitempty"`
		Status    ContactStatus `json:"status,omitempty"`
	}

	MessageSentEvent struct {
		ID        int64  `json:"id"`
		To        string `json:"to"`
		Live      bool   `json:"live"`
		CreatedAt int64  `json:"created_at"`
	}

	MessagesLoadEvent struct {
		From     string         `json:"from"`
		Messages []MessageEvent `json:"messages"`
	}

	ErrorEvent struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}

	DeliveredEvent struct {
		ID int64  `json:"id"`
		By string `json:"by"`
	}

	ReadEvent struct {
		By    string `json:"by"`
		Count int    `json:"count"`
	}
)

func NewMessageEvent(e *Envelope, from string) MessageEvent {
	return MessageEvent{
		ID:         e.ID,
		From:       from,
		Kind:       e.Kind,
		Ciphertext: e.Ciphertext,
		CreatedAt:  e.CreatedAt.UnixMilli(),
	}
}
