package platform

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/config"
)

// maxBodyBytes bounds response reads; platform payloads are small.
const maxBodyBytes = 4 << 20

// Platform-level error messages carried inside HTTP 200 bodies that still
// map onto retry policy.
var (
	restrictionMarkers = []string{
		"restriction of sending",
		"try when the list becomes active",
	}
	fatalMarkers = []string{
		"not your profile",
		"no access",
		"not authorized",
	}
)

// Credentials authenticate one operator against the platform. The bearer
// token and optional clearance cookie are obtained out-of-band by the login
// subsystem.
type Credentials struct {
	Token           string
	ClearanceCookie string
}

// Client is the remote platform API client. Base URL and request timeout
// are read from the config store on every call so settings reloads apply
// to in-flight workers.
type Client struct {
	httpc *http.Client
	cfg   *config.Store
}

// NewClient creates a Client against the configured platform base URL.
func NewClient(cfg *config.Store) *Client {
	return &Client{
		httpc: &http.Client{},
		cfg:   cfg,
	}
}

func (c *Client) baseURL() string {
	return strings.TrimRight(c.cfg.Current().PlatformBaseURL, "/")
}

// apiEnvelope is the platform's error surface: failures can arrive as an
// error/message string or a false status inside an HTTP 200 body.
type apiEnvelope struct {
	Status  *bool  `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// call performs one classified platform request. Success decodes the body
// into out (when non-nil) and returns nil; every failure is either the
// context's error or a *Error carrying its Kind.
func (c *Client) call(parent context.Context, method, path string, creds Credentials, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return &Error{Kind: KindSoft, Reason: "encode payload: " + err.Error()}
		}
		body = bytes.NewReader(b)
	}

	// Per-request deadline; the parent context distinguishes caller
	// cancellation from a local timeout below.
	ctx, cancel := context.WithTimeout(parent, c.cfg.Current().HTTPTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL()+path, body)
	if err != nil {
		return &Error{Kind: KindSoft, Reason: "build request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.Token)
	if creds.ClearanceCookie != "" {
		req.Header.Set("Cookie", creds.ClearanceCookie)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if parent.Err() != nil {
			return parent.Err()
		}
		return &Error{Kind: KindTimeout, Reason: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if parent.Err() != nil {
			return parent.Err()
		}
		return &Error{Kind: KindTimeout, Reason: "read response: " + err.Error()}
	}

	if cerr := classifyStatus(resp.StatusCode, data); cerr != nil {
		return cerr
	}
	if cerr := classifyBody(resp.StatusCode, data); cerr != nil {
		return cerr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return &Error{Kind: KindSoft, Status: resp.StatusCode, Reason: "decode response: " + err.Error()}
		}
	}
	return nil
}

// classifyStatus maps HTTP status codes onto the outcome taxonomy.
func classifyStatus(status int, data []byte) *Error {
	switch {
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Status: status, Reason: "rate limited"}
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		return &Error{Kind: KindFatal, Status: status, Reason: bodyReason(data, "request rejected")}
	case status == 524:
		return &Error{Kind: KindTimeout, Status: status, Reason: "origin timeout"}
	case status < 200 || status >= 300:
		return &Error{Kind: KindSoft, Status: status, Reason: bodyReason(data, http.StatusText(status))}
	}
	return nil
}

// classifyBody maps platform-level errors inside 2xx responses.
func classifyBody(status int, data []byte) *Error {
	var env apiEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		// Not an envelope; leave it to the caller's decode.
		return nil
	}

	msg := env.Error
	if msg == "" {
		msg = env.Message
	}
	if msg == "" && (env.Status == nil || *env.Status) {
		return nil
	}
	if msg == "" {
		msg = "platform reported failure"
	}

	lower := strings.ToLower(msg)
	for _, marker := range restrictionMarkers {
		if strings.Contains(lower, marker) {
			return &Error{Kind: KindRateLimited, Status: status, Reason: msg}
		}
	}
	for _, marker := range fatalMarkers {
		if strings.Contains(lower, marker) {
			return &Error{Kind: KindFatal, Status: status, Reason: msg}
		}
	}
	return &Error{Kind: KindSoft, Status: status, Reason: msg}
}

func bodyReason(data []byte, fallback string) string {
	var env apiEnvelope
	if err := json.Unmarshal(data, &env); err == nil {
		if env.Error != "" {
			return env.Error
		}
		if env.Message != "" {
			return env.Message
		}
	}
	return fallback
}

// cooldown waits the retry cooldown, abandoning promptly on cancellation.
func (c *Client) cooldown(ctx context.Context) error {
	d := c.cfg.Current().RetryCooldown()
	log.Debug().Dur("cooldown", d).Msg("Cooling down before retry")

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
