package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMessageRequestValidate(t *testing.T) {
	valid := CreateMessageRequest{
		ConversationID: "conv-1",
		Sender:         SenderCustomer,
		Message:        "I need help with my order",
	}

	tests := []struct {
		name    string
		mutate  func(r *CreateMessageRequest)
		wantErr string
	}{
		{name: "valid", mutate: func(_ *CreateMessageRequest) {}},
		{
			name:    "missing conversation id",
			mutate:  func(r *CreateMessageRequest) { r.ConversationID = "  " },
			wantErr: "conversation_id",
		},
		{
			name:    "unknown sender",
			mutate:  func(r *CreateMessageRequest) { r.Sender = "bot" },
			wantErr: "sender",
		},
		{
			name:    "empty message",
			mutate:  func(r *CreateMessageRequest) { r.Message = "" },
			wantErr: "message is required",
		},
		{
			name:    "message too long",
			mutate:  func(r *CreateMessageRequest) { r.Message = strings.Repeat("a", MaxMessageLength+1) },
			wantErr: "exceeds",
		},
		{
			name:    "unknown channel",
			mutate:  func(r *CreateMessageRequest) { r.Channel = "pigeon" },
			wantErr: "channel",
		},
		{
			name:   "empty channel is allowed",
			mutate: func(r *CreateMessageRequest) { r.Channel = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestToSupportMessageDefaults(t *testing.T) {
	req := CreateMessageRequest{
		ConversationID: "conv-1",
		Sender:         SenderCustomer,
		Message:        "hello",
	}

	msg := req.ToSupportMessage("acme")

	assert.NotEmpty(t, msg.MessageID)
	assert.Equal(t, "acme", msg.TenantID)
	assert.Equal(t, ChannelChat, msg.Channel)
	assert.False(t, msg.Timestamp.IsZero())

	// Explicit tenant wins over the default.
	req.TenantID = "globex"
	msg = req.ToSupportMessage("acme")
	assert.Equal(t, "globex", msg.TenantID)

	// Message IDs are unique per call.
	other := req.ToSupportMessage("acme")
	assert.NotEqual(t, msg.MessageID, other.MessageID)
}
