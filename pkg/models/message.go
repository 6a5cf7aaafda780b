// Package models contains domain models for the outreach engine.
package models

// MessageKind distinguishes the two outbound message channels.
type MessageKind string

const (
	KindChat MessageKind = "chat"
	KindMail MessageKind = "mail"
)

// Valid reports whether k is a known message kind.
func (k MessageKind) Valid() bool {
	return k == KindChat || k == KindMail
}

// Candidate is one eligible conversation returned by the collection fetcher.
// Candidates are transient: re-fetched every cycle, never persisted.
type Candidate struct {
	ConversationID string `json:"chat_uid"`
	CounterpartID  string `json:"recipient_external_id"`
	ProfileBlocked bool   `json:"sender_block"`
	CounterBlocked bool   `json:"recipient_block"`
}

// Blocked reports whether the platform has blocked the conversation in
// either direction.
func (c Candidate) Blocked() bool {
	return c.ProfileBlocked || c.CounterBlocked
}

// LastMessage is the most recent message of a conversation, as resolved by
// the batch resolver.
type LastMessage struct {
	ConversationID string `json:"chat_uid"`
	SenderID       string `json:"sender_external_id"`
	RecipientID    string `json:"recipient_external_id"`
	Content        string `json:"message_content"`
}

// CounterpartFor derives the counterpart identity for the given profile.
// If the last message was addressed to the profile, the counterpart is its
// sender; otherwise it is its recipient.
func (m LastMessage) CounterpartFor(profileID string) string {
	if m.RecipientID == profileID {
		return m.SenderID
	}
	return m.RecipientID
}

// Attachment is a media item attachable to outbound messages.
type Attachment struct {
	ID    int64  `json:"id"`
	Kind  string `json:"content_type"`
	URL   string `json:"link"`
	Title string `json:"filename"`
}
