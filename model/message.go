// Package model defines the wire entities flowing through the intelligence
// pipeline. All payloads are encoded as JSON with snake_case field names.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageSender identifies who authored a support message.
type MessageSender string

const (
	SenderCustomer MessageSender = "customer"
	SenderAgent    MessageSender = "agent"
	SenderSystem   MessageSender = "system"
)

// Valid reports whether the sender is one of the known values.
func (s MessageSender) Valid() bool {
	switch s {
	case SenderCustomer, SenderAgent, SenderSystem:
		return true
	}
	return false
}

// MessageChannel identifies the communication channel a message arrived on.
type MessageChannel string

const (
	ChannelChat  MessageChannel = "chat"
	ChannelEmail MessageChannel = "email"
	ChannelVoice MessageChannel = "voice"
	ChannelSMS   MessageChannel = "sms"
)

// Valid reports whether the channel is one of the known values.
func (c MessageChannel) Valid() bool {
	switch c {
	case ChannelChat, ChannelEmail, ChannelVoice, ChannelSMS:
		return true
	}
	return false
}

// MaxMessageLength bounds the text of a single support message.
const MaxMessageLength = 10000

// SupportMessage is the immutable record produced to the raw message topic
// for every inbound customer or agent message.
type SupportMessage struct {
	MessageID      string         `json:"message_id"`
	ConversationID string         `json:"conversation_id"`
	TenantID       string         `json:"tenant_id"`
	Sender         MessageSender  `json:"sender"`
	Message        string         `json:"message"`
	Channel        MessageChannel `json:"channel"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// CreateMessageRequest is the ingestion payload accepted over HTTP.
type CreateMessageRequest struct {
	ConversationID string         `json:"conversation_id"`
	Sender         MessageSender  `json:"sender"`
	Message        string         `json:"message"`
	Channel        MessageChannel `json:"channel,omitempty"`
	TenantID       string         `json:"tenant_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Validate checks required fields and bounds before the request is accepted.
func (r *CreateMessageRequest) Validate() error {
	if strings.TrimSpace(r.ConversationID) == "" {
		return fmt.Errorf("conversation_id is required")
	}
	if !r.Sender.Valid() {
		return fmt.Errorf("sender must be one of customer, agent, system")
	}
	if r.Message == "" {
		return fmt.Errorf("message is required")
	}
	if len(r.Message) > MaxMessageLength {
		return fmt.Errorf("message exceeds %d characters", MaxMessageLength)
	}
	if r.Channel != "" && !r.Channel.Valid() {
		return fmt.Errorf("channel must be one of chat, email, voice, sms")
	}
	return nil
}

// ToSupportMessage builds the immutable broker record from an accepted
// ingestion request, assigning the message ID and timestamp.
func (r *CreateMessageRequest) ToSupportMessage(defaultTenant string) SupportMessage {
	tenant := r.TenantID
	if tenant == "" {
		tenant = defaultTenant
	}
	channel := r.Channel
	if channel == "" {
		channel = ChannelChat
	}
	return SupportMessage{
		MessageID:      uuid.NewString(),
		ConversationID: r.ConversationID,
		TenantID:       tenant,
		Sender:         r.Sender,
		Message:        r.Message,
		Channel:        channel,
		Timestamp:      time.Now().UTC().Truncate(time.Millisecond),
		Metadata:       r.Metadata,
	}
}

// CreateMessageResponse acknowledges an accepted ingestion request.
type CreateMessageResponse struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}
