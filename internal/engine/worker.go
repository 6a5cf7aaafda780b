// Package engine runs the per-profile automation workers: the cooperative
// chat and mail loops, the supervisor that enforces one live worker per
// (profile, kind), and the online-presence heartbeat.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/platform"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/pkg/models"
)

// Worker status strings surfaced to clients.
const (
	StatusReady      = "Ready"
	StatusProcessing = "Message processing"
	StatusStopped    = "Processing stopped"
)

// API is the slice of the platform client the workers consume.
type API interface {
	EligibleConversations(ctx context.Context, creds platform.Credentials, profileID string) ([]models.Candidate, error)
	LastMessages(ctx context.Context, creds platform.Credentials, conversationIDs []string) (map[string]models.LastMessage, error)
	SendChatMessage(ctx context.Context, creds platform.Credentials, msg platform.ChatMessage) error
	CreateDraft(ctx context.Context, creds platform.Credentials, draft platform.MailDraft) (int64, error)
	SendDraft(ctx context.Context, creds platform.Credentials, profileID string, draftID int64, recipientIDs []string) error
	DeleteDraft(ctx context.Context, creds platform.Credentials, draftID int64) error
	SetOnline(ctx context.Context, creds platform.Credentials, profileID string) error
}

type workerKey struct {
	ProfileID string
	Kind      models.MessageKind
}

// target is one resolved, sendable counterpart within a cycle.
type target struct {
	conversationID string
	counterpartID  string
}

// worker is the state machine owned by one (profile, kind).
type worker struct {
	key    workerKey
	req    StartRequest
	ctx    context.Context
	cancel context.CancelFunc
	sup    *Supervisor

	mu       sync.Mutex
	status   string
	progress models.Progress
}

func (w *worker) run() {
	defer w.sup.deregister(w.key)

	log.Info().
		Str("profileId", w.key.ProfileID).
		Str("kind", string(w.key.Kind)).
		Msg("Worker started")

	switch w.key.Kind {
	case models.KindMail:
		w.runMail()
	default:
		w.runChat()
	}
}

// Status returns the latest published status.
func (w *worker) Status() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// publish records the status locally and proposes it to the session state
// store, which fans it out to every session of the operator.
func (w *worker) publish(status string) {
	w.mu.Lock()
	w.status = status
	prog := w.progress
	w.mu.Unlock()

	w.sup.states.UpdateProcessingState(w.req.SessionID, w.key.ProfileID, w.key.Kind, models.ProcessingState{
		Status:    status,
		Progress:  prog,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (w *worker) resetProgress(total int) {
	w.mu.Lock()
	w.progress = models.Progress{Total: total}
	w.mu.Unlock()
}

func (w *worker) countSent() {
	w.mu.Lock()
	w.progress.Sent++
	w.mu.Unlock()
}

func (w *worker) countSkipped() {
	w.mu.Lock()
	w.progress.Skipped++
	w.mu.Unlock()
}

// pause sleeps for d, abandoning promptly on cancellation.
func (w *worker) pause(d time.Duration) error {
	if d <= 0 {
		return w.ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.ctx.Done():
		return w.ctx.Err()
	case <-t.C:
		return nil
	}
}

// collectTargets runs the fetch and resolve half of a cycle: full candidate
// collection, block filtering, then one batch resolve of counterparts.
// Counterparts that cannot be resolved count as skipped.
func (w *worker) collectTargets() ([]target, error) {
	convs, err := w.sup.api.EligibleConversations(w.ctx, w.req.Credentials, w.key.ProfileID)
	if err != nil {
		return nil, err
	}

	eligible := convs[:0]
	for _, c := range convs {
		if c.Blocked() {
			continue
		}
		if w.sup.blocks.Contains(w.key.ProfileID, w.key.Kind, c.CounterpartID) {
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	w.resetProgress(len(eligible))
	w.publish(StatusProcessing)

	ids := make([]string, 0, len(eligible))
	for _, c := range eligible {
		ids = append(ids, c.ConversationID)
	}
	resolved, err := w.sup.api.LastMessages(w.ctx, w.req.Credentials, ids)
	if err != nil {
		return nil, err
	}

	targets := make([]target, 0, len(eligible))
	for _, c := range eligible {
		msg, ok := resolved[c.ConversationID]
		if !ok {
			w.countSkipped()
			continue
		}
		counterpart := msg.CounterpartFor(w.key.ProfileID)
		if counterpart == "" || w.sup.blocks.Contains(w.key.ProfileID, w.key.Kind, counterpart) {
			continue
		}
		targets = append(targets, target{
			conversationID: c.ConversationID,
			counterpartID:  counterpart,
		})
	}
	return targets, nil
}

// attempt runs send until it succeeds, is skipped, or the worker must stop.
// Rate limits and transient timeouts cool down and retry the same operation
// without consuming progress. The returned skip flag marks a soft failure;
// a non-nil error is either cancellation or fatal.
func (w *worker) attempt(send func(ctx context.Context) error) (bool, error) {
	for {
		if err := w.ctx.Err(); err != nil {
			return false, err
		}

		err := send(w.ctx)
		if err == nil {
			return false, nil
		}
		if w.ctx.Err() != nil {
			return false, w.ctx.Err()
		}

		switch platform.KindOf(err) {
		case platform.KindRateLimited, platform.KindTimeout:
			log.Debug().
				Str("profileId", w.key.ProfileID).
				Str("kind", string(w.key.Kind)).
				Str("outcome", platform.KindOf(err).String()).
				Msg("Send deferred, cooling down")
			if perr := w.pause(w.sup.cfg.Current().RetryCooldown()); perr != nil {
				return false, perr
			}
		case platform.KindFatal:
			return false, err
		default:
			log.Warn().
				Str("profileId", w.key.ProfileID).
				Str("kind", string(w.key.Kind)).
				Err(err).
				Msg("Send failed, counterpart skipped")
			return true, nil
		}
	}
}

// endCycle handles a cycle-ending error: cancellation publishes the stop
// status, fatal publishes the reason; anything else waits out the idle
// cooldown and lets the loop try again. Returns true when the worker must
// exit.
func (w *worker) endCycle(err error) bool {
	if err == nil {
		if werr := w.pause(w.sup.cfg.Current().IdleCooldown()); werr != nil {
			w.publish(StatusStopped)
			return true
		}
		return false
	}

	if w.ctx.Err() != nil || platform.KindOf(err) == platform.KindNone {
		w.publish(StatusStopped)
		return true
	}
	if platform.KindOf(err) == platform.KindFatal {
		log.Error().
			Str("profileId", w.key.ProfileID).
			Str("kind", string(w.key.Kind)).
			Err(err).
			Msg("Worker failed")
		w.publish(platform.Reason(err))
		return true
	}

	log.Warn().
		Str("profileId", w.key.ProfileID).
		Str("kind", string(w.key.Kind)).
		Err(err).
		Msg("Cycle abandoned")
	if werr := w.pause(w.sup.cfg.Current().IdleCooldown()); werr != nil {
		w.publish(StatusStopped)
		return true
	}
	return false
}
