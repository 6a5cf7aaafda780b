package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/config"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/platform"
)

// heartbeatTracker keeps one online-presence loop per processing profile.
// Heartbeats are an independent failure domain: a failed ping is logged and
// swallowed, never cancelling the owning worker.
type heartbeatTracker struct {
	sup *Supervisor
	api API
	cfg *config.Store

	mu     sync.Mutex
	active map[string]*heartbeat
}

// heartbeat is one registration instance. The loop goroutine holds its own
// pointer so its cleanup can never tear down a fresh registration made for
// a restarted worker.
type heartbeat struct {
	cancel context.CancelFunc
}

func newHeartbeatTracker(sup *Supervisor, api API, cfg *config.Store) *heartbeatTracker {
	return &heartbeatTracker{
		sup:    sup,
		api:    api,
		cfg:    cfg,
		active: make(map[string]*heartbeat),
	}
}

// Track starts a presence loop for the profile unless one is already
// running.
func (h *heartbeatTracker) Track(profileID string, creds platform.Credentials) {
	h.mu.Lock()
	if _, ok := h.active[profileID]; ok {
		h.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	hb := &heartbeat{cancel: cancel}
	h.active[profileID] = hb
	h.mu.Unlock()

	go h.run(ctx, hb, profileID, creds)
}

// Stop cancels the profile's presence loop.
func (h *heartbeatTracker) Stop(profileID string) {
	h.mu.Lock()
	hb, ok := h.active[profileID]
	if ok {
		delete(h.active, profileID)
	}
	h.mu.Unlock()

	if ok {
		hb.cancel()
	}
}

// release drops the loop's own registration only; the entry may already
// belong to a newer registration, which is left untouched.
func (h *heartbeatTracker) release(profileID string, hb *heartbeat) {
	h.mu.Lock()
	if cur, ok := h.active[profileID]; ok && cur == hb {
		delete(h.active, profileID)
	}
	h.mu.Unlock()

	hb.cancel()
}

// Active returns the number of live presence loops.
func (h *heartbeatTracker) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

func (h *heartbeatTracker) run(ctx context.Context, hb *heartbeat, profileID string, creds platform.Credentials) {
	defer h.release(profileID, hb)

	h.beat(ctx, profileID, creds)

	for {
		// Fresh timer each round so interval tunable changes apply.
		t := time.NewTimer(h.cfg.Current().HeartbeatInterval())
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
			if !h.sup.Processing(profileID) {
				log.Debug().Str("profileId", profileID).Msg("Profile no longer processing, heartbeat stopped")
				return
			}
			h.beat(ctx, profileID, creds)
		}
	}
}

func (h *heartbeatTracker) beat(ctx context.Context, profileID string, creds platform.Credentials) {
	if err := h.api.SetOnline(ctx, creds, profileID); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn().Str("profileId", profileID).Err(err).Msg("Presence ping failed")
	}
}
