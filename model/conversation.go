package model

import (
	"fmt"
	"strings"
	"time"
)

// DefaultRecentMessagesWindow bounds the rolling message window kept in
// ConversationState.
const DefaultRecentMessagesWindow = 10

// ConversationState is the per-conversation view maintained by the
// conversation processor and consumed by the analyzer workers. It carries a
// bounded window of recent messages plus the latest summary as compressed
// history.
type ConversationState struct {
	ConversationID string           `json:"conversation_id"`
	TenantID       string           `json:"tenant_id"`
	MessageCount   int              `json:"message_count"`
	RecentMessages []SupportMessage `json:"recent_messages"`
	Participants   []string         `json:"participants"`
	Summary        *SummaryResult   `json:"summary,omitempty"`
	LastActivity   time.Time        `json:"last_activity"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// NewConversationState creates an empty state for a conversation key.
func NewConversationState(tenantID, conversationID string) *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{
		ConversationID: conversationID,
		TenantID:       tenantID,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivity:   now,
	}
}

// AddMessage appends a message to the rolling window, evicting the oldest
// entry beyond the window bound, and updates counters, participants and
// activity timestamps.
func (s *ConversationState) AddMessage(msg SupportMessage, window int) {
	if window <= 0 {
		window = DefaultRecentMessagesWindow
	}
	s.RecentMessages = append(s.RecentMessages, msg)
	if len(s.RecentMessages) > window {
		s.RecentMessages = s.RecentMessages[len(s.RecentMessages)-window:]
	}
	s.MessageCount++
	now := time.Now().UTC()
	s.LastActivity = now
	s.UpdatedAt = now

	sender := string(msg.Sender)
	for _, p := range s.Participants {
		if p == sender {
			return
		}
	}
	s.Participants = append(s.Participants, sender)
}

// LatestMessage returns the newest message in the window, or nil when the
// window is empty.
func (s *ConversationState) LatestMessage() *SupportMessage {
	if len(s.RecentMessages) == 0 {
		return nil
	}
	return &s.RecentMessages[len(s.RecentMessages)-1]
}

// UpdateSummary replaces the cached summary only when the incoming one is
// strictly newer. Returns true when the summary was applied.
func (s *ConversationState) UpdateSummary(summary *SummaryResult) bool {
	if summary == nil {
		return false
	}
	if s.Summary != nil && !summary.Timestamp.After(s.Summary.Timestamp) {
		return false
	}
	s.Summary = summary
	s.UpdatedAt = time.Now().UTC()
	return true
}

// ContextText renders the newest messages as a transcript for model prompts.
func (s *ConversationState) ContextText(maxMessages int) string {
	msgs := s.RecentMessages
	if maxMessages > 0 && len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		sender := string(m.Sender)
		if sender != "" {
			sender = strings.ToUpper(sender[:1]) + sender[1:]
		}
		lines = append(lines, fmt.Sprintf("%s: %s", sender, m.Message))
	}
	return strings.Join(lines, "\n")
}

// Key returns the tenant-scoped conversation key used for state maps and
// subscriber registries.
func (s *ConversationState) Key() ConversationKey {
	return ConversationKey{TenantID: s.TenantID, ConversationID: s.ConversationID}
}

// ConversationKey identifies a conversation within a tenant. Both fields
// always participate in map keys so conversations with the same ID under
// different tenants never collide.
type ConversationKey struct {
	TenantID       string
	ConversationID string
}

func (k ConversationKey) String() string {
	return k.TenantID + ":" + k.ConversationID
}
