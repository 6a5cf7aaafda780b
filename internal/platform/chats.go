package platform

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/pkg/models"
)

type chatPageRequest struct {
	ProfileID string `json:"user_id"`
	ChatType  string `json:"chat_type"`
	Page      int    `json:"page"`
	Freeze    bool   `json:"freeze"`
}

type chatPageResponse struct {
	Conversations []models.Candidate `json:"response"`
}

// ChatPage fetches one page of eligible conversations for a profile.
func (c *Client) ChatPage(ctx context.Context, creds Credentials, profileID string, page int) ([]models.Candidate, error) {
	req := chatPageRequest{
		ProfileID: profileID,
		ChatType:  "active",
		Page:      page,
	}
	var out chatPageResponse
	if err := c.call(ctx, http.MethodPost, "/chatList/chatListByUserID", creds, req, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// EligibleConversations walks result pages until an empty page and returns
// the concatenation. Rate limits and transient timeouts re-request the same
// page after the cooldown; cancellation and fatal errors propagate.
func (c *Client) EligibleConversations(ctx context.Context, creds Credentials, profileID string) ([]models.Candidate, error) {
	var all []models.Candidate
	for page := 1; ; page++ {
		items, err := c.ChatPage(ctx, creds, profileID, page)
		if err != nil {
			switch KindOf(err) {
			case KindRateLimited, KindTimeout:
				log.Debug().
					Str("profileId", profileID).
					Int("page", page).
					Str("outcome", KindOf(err).String()).
					Msg("Page fetch deferred, will retry same page")
				if werr := c.cooldown(ctx); werr != nil {
					return nil, werr
				}
				page--
				continue
			default:
				return nil, err
			}
		}
		if len(items) == 0 {
			return all, nil
		}
		all = append(all, items...)
	}
}

type lastMessagesRequest struct {
	ConversationIDs []string `json:"chat_uids"`
}

type lastMessagesResponse struct {
	Messages []models.LastMessage `json:"response"`
}

// LastMessages resolves the most recent message per conversation in one
// round trip. Conversations whose last message cannot be resolved yield no
// map entry.
func (c *Client) LastMessages(ctx context.Context, creds Credentials, conversationIDs []string) (map[string]models.LastMessage, error) {
	var out lastMessagesResponse
	req := lastMessagesRequest{ConversationIDs: conversationIDs}
	if err := c.call(ctx, http.MethodPost, "/chatList/chatListByUserIds", creds, req, &out); err != nil {
		return nil, err
	}

	resolved := make(map[string]models.LastMessage, len(out.Messages))
	for _, m := range out.Messages {
		if m.ConversationID == "" {
			continue
		}
		resolved[m.ConversationID] = m
	}
	return resolved, nil
}

// ChatMessage is one outbound chat send.
type ChatMessage struct {
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Content     string `json:"message_content"`
	Type        string `json:"message_type"`
	FileURL     string `json:"filename,omitempty"`
}

// SendChatMessage sends a single chat message through the classifier.
func (c *Client) SendChatMessage(ctx context.Context, creds Credentials, msg ChatMessage) error {
	return c.call(ctx, http.MethodPost, "/chat/message", creds, msg, nil)
}
