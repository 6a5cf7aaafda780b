package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/config"
)

// testClient creates a Client pointed at an httptest server with a zero
// retry cooldown so page retries do not slow the tests down.
func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.PlatformBaseURL = srv.URL
	cfg.RetryCooldownSec = 0
	cfg.HTTPTimeoutSec = 5
	return NewClient(config.NewStore(cfg)), srv
}

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   Kind
	}{
		{"too_many_requests", http.StatusTooManyRequests, `{}`, KindRateLimited},
		{"bad_request", http.StatusBadRequest, `{"error":"bad payload"}`, KindFatal},
		{"unauthorized", http.StatusUnauthorized, `{}`, KindFatal},
		{"origin_timeout", 524, ``, KindTimeout},
		{"server_error", http.StatusInternalServerError, `{}`, KindSoft},
		{"not_found", http.StatusNotFound, `{}`, KindSoft},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))

			err := client.SendChatMessage(context.Background(), Credentials{Token: "tok"}, ChatMessage{})
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestClassifyPlatformBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind Kind
	}{
		{"restriction_message", `{"error":"Restriction of sending a personal message. Try when the list becomes active"}`, KindRateLimited},
		{"not_your_profile", `{"error":"Not your profile"}`, KindFatal},
		{"generic_error", `{"error":"something odd happened"}`, KindSoft},
		{"false_status", `{"status":false}`, KindSoft},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))

			err := client.SendChatMessage(context.Background(), Credentials{Token: "tok"}, ChatMessage{})
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestCallSuccess(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "cf_clearance=abc", r.Header.Get("Cookie"))
		w.Write([]byte(`{"status":true}`))
	}))

	creds := Credentials{Token: "tok", ClearanceCookie: "cf_clearance=abc"}
	err := client.SendChatMessage(context.Background(), creds, ChatMessage{
		SenderID:    "p1",
		RecipientID: "c1",
		Content:     "Hi!",
	})
	assert.NoError(t, err)
}

func TestCallNetworkFailureIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on

	cfg := config.Default()
	cfg.PlatformBaseURL = srv.URL
	cfg.HTTPTimeoutSec = 1
	client := NewClient(config.NewStore(cfg))

	err := client.SendChatMessage(context.Background(), Credentials{}, ChatMessage{})
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestCallCancelledContext(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := client.SendChatMessage(ctx, Credentials{}, ChatMessage{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, KindNone, KindOf(err))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindNone, KindOf(errors.New("plain")))
	assert.Equal(t, KindFatal, KindOf(&Error{Kind: KindFatal, Reason: "nope"}))
}

func TestReasonHelper(t *testing.T) {
	assert.Equal(t, "nope", Reason(&Error{Kind: KindFatal, Reason: "nope"}))
	assert.Equal(t, "plain", Reason(errors.New("plain")))
}

func TestCallFollowsBaseURLReload(t *testing.T) {
	var hitA, hitB atomic.Bool
	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitA.Store(true)
		w.Write([]byte(`{"status":true}`))
	}))
	t.Cleanup(srvA.Close)
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitB.Store(true)
		w.Write([]byte(`{"status":true}`))
	}))
	t.Cleanup(srvB.Close)

	cfg := config.Default()
	cfg.PlatformBaseURL = srvA.URL
	store := config.NewStore(cfg)
	client := NewClient(store)

	require.NoError(t, client.SendChatMessage(context.Background(), Credentials{Token: "tok"}, ChatMessage{}))
	assert.True(t, hitA.Load())
	assert.False(t, hitB.Load())

	// Settings reload repoints the platform without rebuilding the client.
	next := config.Default()
	next.PlatformBaseURL = srvB.URL
	store.Replace(next)

	require.NoError(t, client.SendChatMessage(context.Background(), Credentials{Token: "tok"}, ChatMessage{}))
	assert.True(t, hitB.Load())
}
