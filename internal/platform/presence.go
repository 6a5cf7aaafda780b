package platform

import (
	"context"
	"net/http"
	"net/url"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/pkg/models"
)

type setOnlineRequest struct {
	ProfileID string `json:"external_id"`
	Status    int    `json:"status"`
}

// SetOnline flags a profile as online. Used by the presence heartbeat.
func (c *Client) SetOnline(ctx context.Context, creds Credentials, profileID string) error {
	req := setOnlineRequest{ProfileID: profileID, Status: 1}
	return c.call(ctx, http.MethodPost, "/operator/setProfileOnline", creds, req, nil)
}

type attachmentsResponse struct {
	Files []models.Attachment `json:"response"`
}

// ListAttachments lists media attachments of the given content kind
// (images, videos, audios) available to a profile.
func (c *Client) ListAttachments(ctx context.Context, creds Credentials, profileID, kind string) ([]models.Attachment, error) {
	q := url.Values{}
	q.Set("external_id", profileID)
	var out attachmentsResponse
	if err := c.call(ctx, http.MethodGet, "/files/"+url.PathEscape(kind)+"?"+q.Encode(), creds, nil, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}
