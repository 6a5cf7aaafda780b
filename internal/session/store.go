package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/config"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/pkg/models"
)

type entry struct {
	rec    models.SessionRecord
	states map[models.StateKey]models.ProcessingState
}

// Store exclusively owns session records and processing state entries.
// Workers propose state transitions through UpdateProcessingState; they
// never mutate the store's maps directly.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	byEmail  map[string]map[string]struct{}
	bus      *Bus
	cfg      *config.Store

	sweepInterval time.Duration
}

// NewStore creates an empty Store.
func NewStore(cfg *config.Store) *Store {
	return &Store{
		sessions:      make(map[string]*entry),
		byEmail:       make(map[string]map[string]struct{}),
		bus:           NewBus(),
		cfg:           cfg,
		sweepInterval: config.DefaultSweepInterval,
	}
}

// Bus exposes the store's pub/sub hub.
func (s *Store) Bus() *Bus {
	return s.bus
}

// SetSession upserts a session record and keeps the email index consistent:
// the id is removed from its previous email's set before being inserted
// under the new one.
func (s *Store) SetSession(id, email string) models.SessionRecord {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if !ok {
		e = &entry{states: make(map[models.StateKey]models.ProcessingState)}
		s.sessions[id] = e
	}

	oldEmail := e.rec.OperatorEmail
	if oldEmail != "" && oldEmail != email {
		s.unindexLocked(oldEmail, id)
	}

	e.rec = models.SessionRecord{
		ID:            id,
		OperatorEmail: email,
		LastActivity:  time.Now(),
	}
	if email != "" {
		set, ok := s.byEmail[email]
		if !ok {
			set = make(map[string]struct{})
			s.byEmail[email] = set
		}
		set[id] = struct{}{}
	}
	rec := e.rec
	siblings := s.siblingsLocked(email, id)
	s.mu.Unlock()

	if !ok && email != "" {
		s.bus.Publish(models.StreamEvent{
			Type: models.EventSessionUpdate,
			Data: models.SessionUpdate{SessionID: id, OperatorEmail: email},
		}, siblings...)
	}

	log.Debug().Str("sessionId", id).Str("email", email).Msg("Session upserted")
	return rec
}

// Touch refreshes a session's last-activity timestamp.
func (s *Store) Touch(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return false
	}
	e.rec.LastActivity = time.Now()
	return true
}

// Session returns a session record by id.
func (s *Store) Session(id string) (models.SessionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok {
		return models.SessionRecord{}, false
	}
	return e.rec, true
}

// SessionsByEmail lists every session record for an operator email.
func (s *Store) SessionsByEmail(email string) []models.SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byEmail[email]
	out := make([]models.SessionRecord, 0, len(ids))
	for id := range ids {
		if e, ok := s.sessions[id]; ok {
			out = append(out, e.rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateProcessingState upserts the state for (session, kind, profile) and
// fans the delta out to every session sharing the operator email. Writes
// whose timestamp is older than the current entry are dropped so readers
// observe monotonically non-decreasing timestamps per key.
func (s *Store) UpdateProcessingState(sessionID, profileID string, kind models.MessageKind, st models.ProcessingState) {
	key := models.StateKey{ProfileID: profileID, Kind: kind}

	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		log.Debug().Str("sessionId", sessionID).Msg("State update for unknown session dropped")
		return
	}
	if cur, exists := e.states[key]; exists && st.Timestamp < cur.Timestamp {
		s.mu.Unlock()
		return
	}
	e.states[key] = st
	email := e.rec.OperatorEmail
	var targets []string
	if email != "" {
		targets = s.emailSessionsLocked(email)
	} else {
		targets = []string{sessionID}
	}
	s.mu.Unlock()

	s.bus.Publish(models.StreamEvent{
		Type: models.EventStateUpdate,
		Data: models.StateEntry{ProfileID: profileID, Kind: kind, State: st},
	}, targets...)
}

// StatesBySession returns the processing states recorded under one session.
func (s *Store) StatesBySession(id string) []models.StateEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return sortedEntries(e.states)
}

// StatesByEmail merges, per (profile, kind) key, the most recent entry
// across every session of the email.
func (s *Store) StatesByEmail(email string) []models.StateEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	merged := make(map[models.StateKey]models.ProcessingState)
	for id := range s.byEmail[email] {
		e, ok := s.sessions[id]
		if !ok {
			continue
		}
		for key, st := range e.states {
			if cur, exists := merged[key]; !exists || st.Timestamp >= cur.Timestamp {
				merged[key] = st
			}
		}
	}
	return sortedEntries(merged)
}

func sortedEntries(states map[models.StateKey]models.ProcessingState) []models.StateEntry {
	out := make([]models.StateEntry, 0, len(states))
	for key, st := range states {
		out = append(out, models.StateEntry{ProfileID: key.ProfileID, Kind: key.Kind, State: st})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProfileID != out[j].ProfileID {
			return out[i].ProfileID < out[j].ProfileID
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// RemoveSession tears down a session and both indices, then notifies the
// email's surviving sessions.
func (s *Store) RemoveSession(id string) bool {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	email := e.rec.OperatorEmail
	delete(s.sessions, id)
	if email != "" {
		s.unindexLocked(email, id)
	}
	siblings := s.emailSessionsLocked(email)
	s.mu.Unlock()

	if email != "" {
		s.bus.Publish(models.StreamEvent{
			Type: models.EventSessionUpdate,
			Data: models.SessionUpdate{SessionID: id, OperatorEmail: email, Removed: true},
		}, siblings...)
	}

	log.Debug().Str("sessionId", id).Str("email", email).Msg("Session removed")
	return true
}

// SessionCount returns the number of live sessions.
func (s *Store) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Run sweeps inactive sessions until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sweep(time.Now()); n > 0 {
				log.Info().Int("evicted", n).Msg("Swept inactive sessions")
			}
		}
	}
}

// sweep evicts sessions whose last activity is older than the session TTL.
// Scan and removal share one critical section so a Touch landing during the
// sweep keeps its session alive.
func (s *Store) sweep(now time.Time) int {
	ttl := s.cfg.Current().SessionTTL()

	type eviction struct {
		id       string
		email    string
		siblings []string
	}

	s.mu.Lock()
	var evicted []eviction
	for id, e := range s.sessions {
		if now.Sub(e.rec.LastActivity) < ttl {
			continue
		}
		email := e.rec.OperatorEmail
		delete(s.sessions, id)
		if email != "" {
			s.unindexLocked(email, id)
		}
		evicted = append(evicted, eviction{id: id, email: email, siblings: s.emailSessionsLocked(email)})
	}
	s.mu.Unlock()

	for _, ev := range evicted {
		if ev.email != "" {
			s.bus.Publish(models.StreamEvent{
				Type: models.EventSessionUpdate,
				Data: models.SessionUpdate{SessionID: ev.id, OperatorEmail: ev.email, Removed: true},
			}, ev.siblings...)
		}
		log.Debug().Str("sessionId", ev.id).Str("email", ev.email).Msg("Inactive session evicted")
	}
	return len(evicted)
}

// unindexLocked removes id from email's set; callers hold s.mu.
func (s *Store) unindexLocked(email, id string) {
	set, ok := s.byEmail[email]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(s.byEmail, email)
	}
}

// emailSessionsLocked returns the session ids under email; callers hold s.mu.
func (s *Store) emailSessionsLocked(email string) []string {
	ids := s.byEmail[email]
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out
}

// siblingsLocked returns email's session ids except self; callers hold s.mu.
func (s *Store) siblingsLocked(email, self string) []string {
	ids := s.byEmail[email]
	out := make([]string, 0, len(ids))
	for id := range ids {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}
