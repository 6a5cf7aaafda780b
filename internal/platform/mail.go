package platform

import (
	"context"
	"net/http"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/pkg/models"
)

// MailDraft is the payload of a mail send: drafts are created, sent, then
// deleted as a three-step transaction.
type MailDraft struct {
	ProfileID    string              `json:"user_id"`
	RecipientIDs []string            `json:"recipients"`
	Content      string              `json:"message_content"`
	Attachments  []models.Attachment `json:"attachments"`
}

type createDraftResponse struct {
	DraftID int64 `json:"draft_id"`
}

// CreateDraft creates a mail draft and returns its id.
func (c *Client) CreateDraft(ctx context.Context, creds Credentials, draft MailDraft) (int64, error) {
	var out createDraftResponse
	if err := c.call(ctx, http.MethodPost, "/mailbox/adddraft", creds, draft, &out); err != nil {
		return 0, err
	}
	return out.DraftID, nil
}

type sendDraftRequest struct {
	ProfileID    string   `json:"user_id"`
	DraftID      int64    `json:"draft_id"`
	RecipientIDs []string `json:"recipients"`
}

// SendDraft sends a previously created draft as mail.
func (c *Client) SendDraft(ctx context.Context, creds Credentials, profileID string, draftID int64, recipientIDs []string) error {
	req := sendDraftRequest{
		ProfileID:    profileID,
		DraftID:      draftID,
		RecipientIDs: recipientIDs,
	}
	return c.call(ctx, http.MethodPost, "/mailbox/mail", creds, req, nil)
}

type deleteDraftRequest struct {
	DraftIDs []int64 `json:"draft_ids"`
}

// DeleteDraft removes a draft after it has been sent.
func (c *Client) DeleteDraft(ctx context.Context, creds Credentials, draftID int64) error {
	return c.call(ctx, http.MethodPost, "/mailbox/deletedraft", creds, deleteDraftRequest{DraftIDs: []int64{draftID}}, nil)
}
